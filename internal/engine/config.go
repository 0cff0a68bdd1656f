package engine

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/roach88/upbb/internal/ir"
)

// DefaultBatchSize is the number of records appended to the raw data
// store per transaction.
const DefaultBatchSize = 256

// MaxWorkers caps Config.Workers.
const MaxWorkers = 1024

// configValidate is the validator instance for run configuration.
var configValidate = validator.New()

// Config holds the parameters of one propagation run.
//
// Zero values select defaults: subinterval method, the method's default n,
// seed 0, serial evaluation, no timeout, no persistence.
type Config struct {
	// Method selects the partitioning strategy. Empty selects subinterval.
	// Unknown names are reported as UNKNOWN_METHOD when the run executes,
	// not as a validation failure.
	Method ir.Method `validate:"omitempty,max=64"`

	// N is the method-dependent sample count; 0 selects the method default.
	N int `validate:"gte=0"`

	// Seed drives the sampled methods.
	Seed uint64

	// Workers is the number of concurrent evaluations. 0 and 1 evaluate
	// serially on the calling goroutine.
	Workers int `validate:"gte=0,lte=1024"`

	// Timeout bounds each evaluation; 0 disables it.
	Timeout time.Duration `validate:"gte=0"`

	// SaveRawData persists every record under BasePath.
	SaveRawData bool
	BasePath    string `validate:"required_if=SaveRawData true"`

	// MaxSamples caps the plan size; 0 selects the partition default.
	MaxSamples int64 `validate:"gte=0"`

	// BatchSize is the number of records per store transaction.
	BatchSize int `validate:"gte=0,lte=100000"`

	// OutputName labels the run in the raw data artifact.
	OutputName string `validate:"max=256"`
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if err := configValidate.Struct(c); err != nil {
		return fmt.Errorf("invalid run config: %w", err)
	}
	return nil
}

// withDefaults returns a copy with zero fields resolved.
func (c Config) withDefaults() Config {
	if c.Method == "" {
		c.Method = ir.MethodSubinterval
	}
	if c.Workers < 1 {
		c.Workers = 1
	}
	if c.BatchSize == 0 {
		c.BatchSize = DefaultBatchSize
	}
	return c
}
