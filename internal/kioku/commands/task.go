package commands

import (
	"errors"
	"fmt"
	"strings"
)

// Task is one of the fixed device tasks an assistant response may request.
type Task string

// Supported tasks.
const (
	TaskTakePhoto        Task = "take_photo"
	TaskShowNotification Task = "show_notification"
	TaskGetLocation      Task = "get_location"
	TaskSpeakText        Task = "speak_text"
	TaskChooseFile       Task = "choose_file"
)

// Tasks lists every supported task.
var Tasks = []Task{
	TaskTakePhoto,
	TaskShowNotification,
	TaskGetLocation,
	TaskSpeakText,
	TaskChooseFile,
}

// ErrUnknownTask is returned for task names outside Tasks.
var ErrUnknownTask = errors.New("unknown task")

// ParseTask maps a task name onto the enumeration.
func ParseTask(name string) (Task, error) {
	name = strings.TrimSpace(name)
	for _, t := range Tasks {
		if string(t) == name {
			return t, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownTask, name)
}

func (t Task) String() string { return string(t) }
