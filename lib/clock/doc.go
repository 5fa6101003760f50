// Copyright 2026 The Jobfeed Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time abstraction for testability.
//
// The feed engine is timer-heavy: undo windows, reconnect backoff,
// search debounce, and rate-limit windows all depend on wall-clock
// time. Production code accepts a Clock parameter instead of calling
// time.Now, time.After, time.AfterFunc, or time.Sleep directly. In
// production, Real() provides the standard library behavior. In tests,
// Fake() provides a deterministic clock that advances only when
// Advance is called.
//
// # Wiring Pattern
//
// Add a Clock field to structs that use time:
//
//	type Coordinator struct {
//	    clock clock.Clock
//	    // ...
//	}
//
// In production:
//
//	c := &Coordinator{clock: clock.Real()}
//
// In tests:
//
//	fake := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	c := &Coordinator{clock: fake}
//	// ... trigger the code path that arms a timer ...
//	fake.WaitForTimers(1)          // wait for the timer to register
//	fake.Advance(5 * time.Second)  // fire it deterministically
//
// # FakeClock Synchronization
//
// When a goroutine calls Sleep, After, or AfterFunc on a FakeClock, it
// registers a pending waiter. Use WaitForTimers to block until a
// specific number of waiters are registered before calling Advance.
// This eliminates the race between timer registration and time
// advancement that plagues tests using time.Sleep for synchronization.
package clock
