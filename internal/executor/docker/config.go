package docker

import (
	"time"

	"github.com/docker/go-units"
)

// Config holds the configuration for the Docker sandbox.
type Config struct {
	// Image is the Docker image to compile and run in. It must ship gcc
	// and coreutils timeout.
	Image string
	// MemoryLimit is the container memory cap in bytes. Swap is disabled.
	MemoryLimit int64
	// CPULimit is the number of CPUs the container can use.
	CPULimit float64
	// PidsLimit bounds processes and threads inside the container.
	PidsLimit int64
	// TmpfsSize caps the writable, executable scratch area at /tmp.
	TmpfsSize int64
	// OutputLimit caps captured stdout and stderr, each.
	OutputLimit int64
	// User the compiler and program run as.
	User string

	// MaxConcurrent is the number of containers allowed to run at once.
	MaxConcurrent int
	// AcquireTimeout is how long a run waits for a free slot before giving up.
	AcquireTimeout time.Duration
	// SupervisorGrace is added to the program timeout to form the outer
	// deadline after which the container is killed from outside.
	SupervisorGrace time.Duration
}

// DefaultConfig provides the limits used for untrusted C submissions.
func DefaultConfig() Config {
	return Config{
		Image:           "gcc:latest",
		MemoryLimit:     128 * units.MiB,
		CPULimit:        0.5,
		PidsLimit:       50,
		TmpfsSize:       10 * units.MiB,
		OutputLimit:     10 * units.MiB,
		User:            "nobody",
		MaxConcurrent:   4,
		AcquireTimeout:  10 * time.Second,
		SupervisorGrace: 5 * time.Second,
	}
}
