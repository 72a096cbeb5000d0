package extract

import "errors"

var (
	// ErrSourceNotFound means the path is missing or not a regular file.
	ErrSourceNotFound = errors.New("extract: file not found")
	// ErrPayloadLoad wraps PE or metadata errors from loading the assembly.
	ErrPayloadLoad = errors.New("extract: failed to load .NET payload")
	// ErrMarkerNotFound means the VerifyHash signature is absent from the file.
	ErrMarkerNotFound = errors.New("extract: could not identify VerifyHash() marker")
	// ErrNoConstructorsFound means the assembly defines no .cctor with a body.
	ErrNoConstructorsFound = errors.New("extract: no .cctor method could be found")
	// ErrInsufficientFields means a candidate decoded fewer fields than the current threshold.
	ErrInsufficientFields = errors.New("extract: minimum threshold of config items not met")
	// ErrBruteForceExhausted means no .cctor decoded at any threshold.
	ErrBruteForceExhausted = errors.New("extract: no valid configuration could be parsed from any .cctor methods")
	// ErrAllDecryptorsFailed means every registered decryptor was incompatible or failed the batch.
	ErrAllDecryptorsFailed = errors.New("extract: all decryptors failed")
	// ErrNoConfigFound is the final error when both locating strategies fail.
	ErrNoConfigFound = errors.New("extract: could not identify config")
)
