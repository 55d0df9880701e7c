// Package queue provides a lock-free Multi-Producer Single-Consumer (MPSC) queue.
//
// The queue backs the work queue of the transport's I/O service: any goroutine
// may post work, exactly one goroutine runs it.
//
// Features and Guarantees:
//
//   - Lock-Free writes: atomic operations for low latency even under contention
//   - Unbounded Size: the queue grows as needed, limited only by available memory
//   - Thread-Safe writes: any number of goroutines may Push() concurrently
//   - Single Consumer: one goroutine consumes values via the Recv() channel
//   - FIFO per producer: items pushed by one goroutine are received in push order.
//     Across producers the order is decided by which CAS completes first.
package queue
