package workqueue

import (
	"context"
	"maps"
)

// EnqueueDownload queues a remote to local copy. dest may be empty when
// caseID names a registered case.
func (d *Daemon) EnqueueDownload(ctx context.Context, caseID, source, dest string) (string, error) {
	task, err := d.Enqueue(ctx, Task{Kind: KindDownload, CaseID: caseID, SourcePath: source, DestPath: dest})
	return task.ID, err
}

// EnqueuePrefetch queues the download an automation run waits for. The
// task skips auto-unpack; the automation handles the file.
func (d *Daemon) EnqueuePrefetch(ctx context.Context, caseID, automation, source, dest string) (string, error) {
	task, err := d.Enqueue(ctx, Task{Kind: KindDownload, CaseID: caseID, SourcePath: source, DestPath: dest, PrefetchFor: automation})
	return task.ID, err
}

// EnqueueUpload queues a local to remote copy.
func (d *Daemon) EnqueueUpload(ctx context.Context, caseID, source, dest string) (string, error) {
	task, err := d.Enqueue(ctx, Task{Kind: KindUpload, CaseID: caseID, SourcePath: source, DestPath: dest})
	return task.ID, err
}

// EnqueueRefresh queues a rescan of both trees of a case.
func (d *Daemon) EnqueueRefresh(ctx context.Context, caseID string) (string, error) {
	task, err := d.Enqueue(ctx, Task{Kind: KindRefresh, CaseID: caseID})
	return task.ID, err
}

// EnqueueAutomation queues one run of a registered automation.
func (d *Daemon) EnqueueAutomation(ctx context.Context, caseID, name, target, local string, overrides map[string]string) (string, error) {
	task, err := d.Enqueue(ctx, Task{
		Kind:           KindAutomation,
		CaseID:         caseID,
		AutomationName: name,
		SourcePath:     target,
		DestPath:       local,
		Options:        maps.Clone(overrides),
	})
	return task.ID, err
}

// EnqueuePoll queues one poll pass.
func (d *Daemon) EnqueuePoll(ctx context.Context) (string, error) {
	task, err := d.Enqueue(ctx, Task{Kind: KindPoll})
	return task.ID, err
}
