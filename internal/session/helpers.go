package session

import "spoky/internal/action"

// Convenience wrappers for the common record shapes.

func (l *Logger) LogMouseClick(x, y int, button string) (action.Record, error) {
	return l.Log(action.MouseClick, map[string]any{
		"x":      x,
		"y":      y,
		"button": button,
	}, action.StatusSuccess)
}

func (l *Logger) LogKeyboardInput(keys, context string) (action.Record, error) {
	return l.Log(action.KeyboardInput, map[string]any{
		"keys":    keys,
		"context": context,
	}, action.StatusSuccess)
}

func (l *Logger) LogVoiceCommand(command, recognized string, confidence float64) (action.Record, error) {
	return l.Log(action.VoiceCommand, map[string]any{
		"command":         command,
		"recognized_text": recognized,
		"confidence":      confidence,
	}, action.StatusSuccess)
}

func (l *Logger) LogWindowSwitch(from, to string) (action.Record, error) {
	return l.Log(action.WindowSwitch, map[string]any{
		"from": from,
		"to":   to,
	}, action.StatusSuccess)
}

func (l *Logger) LogFileOperation(op, path string, status action.Status) (action.Record, error) {
	return l.Log(action.FileOperation, map[string]any{
		"operation": op,
		"file_path": path,
	}, status)
}

func (l *Logger) LogAutomationTask(name string, durationSeconds float64, status action.Status) (action.Record, error) {
	return l.Log(action.AutomationTask, map[string]any{
		"task_name":        name,
		"duration_seconds": durationSeconds,
	}, status)
}

func (l *Logger) LogError(kind, message string, context map[string]any) (action.Record, error) {
	details := map[string]any{
		"error_type":    kind,
		"error_message": message,
	}
	if context != nil {
		details["context"] = context
	}
	return l.Log(action.Error, details, action.StatusFailure)
}
