package workqueue

// Status captures the worker's state for the CLI and IPC.
type Status struct {
	Running    bool   `json:"running"`
	Depth      int    `json:"depth"`
	Pending    []Task `json:"pending,omitempty"`
	Current    *Task  `json:"current,omitempty"`
	LastTask   *Task  `json:"last_task,omitempty"`
	LastError  string `json:"last_error,omitempty"`
	Processed  int    `json:"processed"`
	Failed     int    `json:"failed"`
	Subscribed int    `json:"subscribers"`
}

// Status returns a snapshot of the queue and worker.
func (d *Daemon) Status() Status {
	d.mu.Lock()
	status := Status{
		Running:   d.running,
		Processed: d.processed,
		Failed:    d.failed,
	}
	if d.current != nil {
		cur := *d.current
		status.Current = &cur
	}
	if d.lastTask != nil {
		last := *d.lastTask
		status.LastTask = &last
	}
	if d.lastErr != nil {
		status.LastError = d.lastErr.Error()
	}
	d.mu.Unlock()

	status.Depth = d.queue.Depth()
	status.Pending = d.queue.Pending()
	if d.bus != nil {
		status.Subscribed = d.bus.Count()
	}
	return status
}

func (d *Daemon) setCurrent(task *Task) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.current = task
}

func (d *Daemon) finish(task Task, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.current = nil
	d.lastTask = &task
	d.processed++
	if err != nil {
		d.failed++
		d.lastErr = err
	}
}
