package ltesim

// scheduler.go holds the structures that share an eNB's air interface
// among the packets queued for transmission over it.

// When a task is scheduled the caller specifies how much service is required
// (in seconds of air time on one carrier) and a time-slice, normally one TTI.
// If the time-slice is at least the requirement the service is given all at
// once.  Otherwise the task is given one time-slice of service and the residual
// task rejoins the back of the waiting queue, so concurrent transmissions share
// the carriers round-robin.  Each component carrier is one server; allocation
// of carriers is first-come first-serve.

import (
	"math"

	"github.com/iti/evt/evtm"
	"github.com/iti/evt/vrtime"
)

// Task describes the service requirements of one transmission
type Task struct {
	OpType       string                    // "dl" or "ul"
	req          float64                   // residual service, seconds
	ts           float64                   // timeslice
	completeFunc evtm.EventHandlerFunction // call when finished
	context      any                       // remember this from caller, to return when finished
	Msg          any                       // packet being carried
}

// TaskScheduler holds data structures supporting the multi-carrier scheduling
type TaskScheduler struct {
	cores     int     // number of carriers
	ts        float64 // default timeslice
	waiting   []*Task // work to do, not in service
	inservice int     // number of carriers busy

	// total air time granted, for utilization reporting
	busy float64
}

// CreateTaskScheduler is a constructor
func CreateTaskScheduler(cores int, ts float64) *TaskScheduler {
	if cores < 1 {
		cores = 1
	}
	ops := new(TaskScheduler)
	ops.cores = cores
	ops.ts = ts
	ops.waiting = []*Task{}
	return ops
}

// Schedule puts a piece of work either in queue to be done, or in service.  Parameters are
// - op : a code for the type of work being done
// - req : the service requirement of this task, in seconds
// - ts  : timeslice, the amount of service the task gets before yielding; zero selects the default
// - msg : the packet being transmitted
// - complete : an event handler to be called when the task has completed
// The return is true if the task was placed immediately into service.
func (ops *TaskScheduler) Schedule(evtMgr *evtm.EventManager, op string, req, ts float64,
	context any, msg any, complete evtm.EventHandlerFunction) bool {

	if !(ts > 0) {
		ts = ops.ts
	}
	task := &Task{OpType: op, req: req, ts: ts, Msg: msg, context: context, completeFunc: complete}
	return ops.joinQueue(evtMgr, task)
}

// Backlog is the number of tasks waiting for a carrier
func (ops *TaskScheduler) Backlog() int {
	return len(ops.waiting)
}

// BusyTime is the total air time granted so far, summed over carriers
func (ops *TaskScheduler) BusyTime() float64 {
	return ops.busy
}

// joinQueue is called to put a Task into the data structure that governs
// allocation of service
func (ops *TaskScheduler) joinQueue(evtMgr *evtm.EventManager, task *Task) bool {
	// if all the carriers are busy, put in the waiting queue and return
	if ops.cores <= ops.inservice {
		ops.waiting = append(ops.waiting, task)
		return false
	}

	execute := math.Min(task.req, task.ts)
	task.req = math.Max(task.req-execute, 0.0)
	ops.inservice += 1
	ops.busy += execute

	evtMgr.Schedule(ops, task, timeSliceComplete, vrtime.SecondsToTime(execute))
	return true
}

// timeSliceComplete is called when the timeslice allocated to a task has completed
func timeSliceComplete(evtMgr *evtm.EventManager, context any, data any) any {
	ops := context.(*TaskScheduler)
	task := data.(*Task)
	ops.inservice -= 1

	// a task with residual work goes to the back of the line
	if task.req > 0.0 {
		ops.waiting = append(ops.waiting, task)
	} else {
		evtMgr.Schedule(task.context, task.Msg, task.completeFunc, vrtime.SecondsToTime(0.0))
	}

	// the carrier just freed goes to the first (FCFS) waiting task
	if len(ops.waiting) > 0 {
		next := ops.waiting[0]
		ops.waiting = ops.waiting[1:]
		ops.joinQueue(evtMgr, next)
	}
	return nil
}
