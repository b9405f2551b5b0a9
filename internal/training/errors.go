package training

import "fmt"

// ConfigurationError is a bad or missing dataset, descriptor or base model. Not retried.
type ConfigurationError struct {
	Msg string
	Err error
}

func (e *ConfigurationError) Error() string {
	if e.Err == nil {
		return "configuration error: " + e.Msg
	}
	return fmt.Sprintf("configuration error: %s: %v", e.Msg, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// ArtifactDownloadError is a failure to fetch base weights from upstream. Remediation tells the
// operator where to place the file by hand.
type ArtifactDownloadError struct {
	WeightsFile string
	CacheDir    string
	Err         error
}

func (e *ArtifactDownloadError) Error() string {
	return fmt.Sprintf("could not download base weights '%s': %v. "+
		"Check network access to the upstream release host, or download '%s' manually and place it in '%s'",
		e.WeightsFile, e.Err, e.WeightsFile, e.CacheDir)
}

func (e *ArtifactDownloadError) Unwrap() error { return e.Err }

// TrainingExecutionError is any failure raised by the trainer while training
type TrainingExecutionError struct {
	Err error
}

func (e *TrainingExecutionError) Error() string {
	return fmt.Sprintf("training failed: %v", e.Err)
}

func (e *TrainingExecutionError) Unwrap() error { return e.Err }

// PersistenceError is a failed write of progress or final state. It is logged, never propagated.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("could not %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
