package corosock

// noCopy marks types that must not be copied after first use, such as
// Mutex and WaitGroup whose waiter queues are referenced by suspended
// tasks. go vet's copylocks check reports copies of values embedding
// it because it implements sync.Locker.
type noCopy struct{}

// Lock is a no-op used by go vet.
func (*noCopy) Lock() {}

// Unlock is a no-op used by go vet.
func (*noCopy) Unlock() {}
