package pool

import "context"

// Worker is an opaque handle to a long-lived browser process. A worker is
// usable for one extraction task at a time and must not be retained by a
// caller after Release.
type Worker interface {
	// ID uniquely identifies the worker for the lifetime of the process.
	ID() string

	// Connected reports whether the underlying process is still alive and
	// reachable. It may flip to false at any time.
	Connected() bool

	// Close tears down the underlying process. It is called at most once
	// per worker by the pool.
	Close(ctx context.Context) error
}

// Launcher creates new workers. Launch options (executable path, flags,
// viewport defaults) belong to the launcher and are opaque to the pool.
type Launcher interface {
	Launch(ctx context.Context) (Worker, error)
}

// LauncherFunc adapts a function to the Launcher interface.
type LauncherFunc func(ctx context.Context) (Worker, error)

func (f LauncherFunc) Launch(ctx context.Context) (Worker, error) {
	return f(ctx)
}
