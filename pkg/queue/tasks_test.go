package queue

import (
	"encoding/json"
	"testing"
	"time"
)

func TestProcessTask_Interface(t *testing.T) {
	task := &ProcessTask{
		MessageID: "ch_0000000001",
		UserID:    "user-1",
		Source:    "chat",
		Priority:  PriorityNormal,
		QueuedAt:  time.Now(),
	}

	if task.GetUserID() != "user-1" {
		t.Errorf("GetUserID() = %s, want user-1", task.GetUserID())
	}
	if task.GetPriority() != PriorityNormal {
		t.Errorf("GetPriority() = %d, want %d", task.GetPriority(), PriorityNormal)
	}
	if task.GetTaskType() != TaskTypeProcess {
		t.Errorf("GetTaskType() = %s, want %s", task.GetTaskType(), TaskTypeProcess)
	}
}

func TestQueuedTask_ParseTask(t *testing.T) {
	pt := &ProcessTask{
		MessageID: "ch_0000000001",
		UserID:    "user-1",
		Source:    "chat",
		Priority:  PriorityHigh,
	}

	taskBytes, _ := json.Marshal(pt)
	qt := &QueuedTask{
		ID:         "task-1",
		Task:       taskBytes,
		TaskType:   TaskTypeProcess,
		Priority:   PriorityHigh,
		EnqueuedAt: time.Now(),
	}

	parsed, err := qt.ParseTask()
	if err != nil {
		t.Fatalf("ParseTask() error = %v", err)
	}

	got, ok := parsed.(*ProcessTask)
	if !ok {
		t.Fatal("ParseTask() did not return *ProcessTask")
	}
	if got.MessageID != "ch_0000000001" {
		t.Errorf("Parsed MessageID = %s, want ch_0000000001", got.MessageID)
	}
}

func TestQueuedTask_ParseTask_UnknownType(t *testing.T) {
	qt := &QueuedTask{
		ID:       "task-1",
		Task:     []byte("{}"),
		TaskType: TaskType("unknown"),
	}

	_, err := qt.ParseTask()
	if err != ErrUnknownTaskType {
		t.Errorf("ParseTask() error = %v, want %v", err, ErrUnknownTaskType)
	}
}

func TestDefaultConfigs(t *testing.T) {
	configs := DefaultConfigs()

	expected := []string{"daylog:process", "daylog:report", "daylog:schedule"}
	for _, name := range expected {
		if _, ok := configs[name]; !ok {
			t.Errorf("DefaultConfigs() missing %s", name)
		}
	}

	// Inference-heavy processing needs the longest visibility timeout.
	if configs["daylog:process"].VisibilityTimeout < configs["daylog:schedule"].VisibilityTimeout {
		t.Error("process queue should have a longer visibility timeout than schedule queue")
	}
}
