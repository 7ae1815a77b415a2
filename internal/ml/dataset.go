package ml

import (
	"bytes"
	_ "embed"
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"sort"
	"strconv"
	"strings"
	"sync"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

//go:embed data/iris.csv
var irisCSV []byte

// Dataset is a labelled feature matrix. Datasets returned by LoadDataset are
// shared and must not be modified.
type Dataset struct {
	Name    string
	X       *mat.Dense
	Y       []int
	Classes []string
}

// Len returns the number of samples.
func (d *Dataset) Len() int { return len(d.Y) }

// Features returns the number of feature columns.
func (d *Dataset) Features() int {
	_, c := d.X.Dims()
	return c
}

const (
	Iris  = "iris"
	Blobs = "blobs"
	Moons = "moons"
)

var loaders = map[string]func() (*Dataset, error){
	Iris: sync.OnceValues(func() (*Dataset, error) {
		return ReadCSV(Iris, bytes.NewReader(irisCSV))
	}),
	Blobs: sync.OnceValues(func() (*Dataset, error) {
		return MakeBlobs(150, 3, 1.0, 7), nil
	}),
	Moons: sync.OnceValues(func() (*Dataset, error) {
		return MakeMoons(150, 0.15, 11), nil
	}),
}

// DatasetNames returns the names accepted by LoadDataset, sorted.
func DatasetNames() []string {
	names := make([]string, 0, len(loaders))
	for name := range loaders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// LoadDataset returns the named dataset. Loading happens once per process.
func LoadDataset(name string) (*Dataset, error) {
	load, ok := loaders[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDataset, name)
	}
	return load()
}

// ReadCSV parses a CSV table with a header row, numeric feature columns and
// the class label in the last column. Labels are numbered in order of first
// appearance.
func ReadCSV(name string, r io.Reader) (*Dataset, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	nf := len(header) - 1
	if nf < 1 {
		return nil, fmt.Errorf("dataset %s: need at least one feature column", name)
	}

	var (
		data    []float64
		y       []int
		classes []string
	)
	index := map[string]int{}
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read line %d: %w", line, err)
		}
		if len(rec) != nf+1 {
			return nil, fmt.Errorf("dataset %s line %d: want %d fields, got %d", name, line, nf+1, len(rec))
		}
		for _, field := range rec[:nf] {
			v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
			if err != nil {
				return nil, fmt.Errorf("dataset %s line %d: %w", name, line, err)
			}
			data = append(data, v)
		}
		label := strings.TrimSpace(rec[nf])
		id, ok := index[label]
		if !ok {
			id = len(classes)
			index[label] = id
			classes = append(classes, label)
		}
		y = append(y, id)
	}
	if len(y) == 0 {
		return nil, fmt.Errorf("dataset %s: no samples", name)
	}

	return &Dataset{
		Name:    name,
		X:       mat.NewDense(len(y), nf, data),
		Y:       y,
		Classes: classes,
	}, nil
}

// MakeBlobs generates n two-dimensional samples from isotropic Gaussian
// clusters. Cluster centres are drawn uniformly from [-10, 10]².
func MakeBlobs(n, centers int, std float64, seed uint64) *Dataset {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))

	cx := make([][2]float64, centers)
	for i := range cx {
		cx[i] = [2]float64{rng.Float64()*20 - 10, rng.Float64()*20 - 10}
	}

	x := mat.NewDense(n, 2, nil)
	y := make([]int, n)
	classes := make([]string, centers)
	for c := range classes {
		classes[c] = strconv.Itoa(c)
	}
	per := max(n/centers, 1)
	for i := 0; i < n; i++ {
		// remainder samples go to the first clusters
		c := i / per
		if c >= centers {
			c = i % centers
		}
		x.Set(i, 0, cx[c][0]+rng.NormFloat64()*std)
		x.Set(i, 1, cx[c][1]+rng.NormFloat64()*std)
		y[i] = c
	}
	return &Dataset{Name: Blobs, X: x, Y: y, Classes: classes}
}

// MakeMoons generates two interleaving half circles with Gaussian noise.
// n must be at least 4.
func MakeMoons(n int, noise float64, seed uint64) *Dataset {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	nOut := n / 2
	nIn := n - nOut

	x := mat.NewDense(n, 2, nil)
	y := make([]int, n)

	outer := floats.Span(make([]float64, nOut), 0, math.Pi)
	for i, t := range outer {
		x.Set(i, 0, math.Cos(t))
		x.Set(i, 1, math.Sin(t))
	}
	inner := floats.Span(make([]float64, nIn), 0, math.Pi)
	for i, t := range inner {
		x.Set(nOut+i, 0, 1-math.Cos(t))
		x.Set(nOut+i, 1, 1-math.Sin(t)-0.5)
		y[nOut+i] = 1
	}
	if noise > 0 {
		raw := x.RawMatrix().Data
		for i := range raw {
			raw[i] += rng.NormFloat64() * noise
		}
	}
	return &Dataset{Name: Moons, X: x, Y: y, Classes: []string{"0", "1"}}
}
