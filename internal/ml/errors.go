package ml

import "errors"

var (
	// ErrUnknownDataset is returned by LoadDataset for unregistered names.
	ErrUnknownDataset = errors.New("ml: unknown dataset")
	// ErrNotFitted is returned when predicting with an unfitted classifier.
	ErrNotFitted = errors.New("ml: classifier is not fitted")
	// ErrTooFewSamples is returned by Fit when the training set has fewer
	// samples than neighbours requested.
	ErrTooFewSamples = errors.New("ml: too few training samples")
	// ErrInvalidHyperparameter reports an out of range hyperparameter value.
	ErrInvalidHyperparameter = errors.New("ml: invalid hyperparameter")
)
