package dispatch

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// DefaultWordsPerMinute approximates a phone TTS engine at normal rate.
const DefaultWordsPerMinute = 170

// SpeakingTime estimates how long text takes to say at wpm.
func SpeakingTime(text string, wpm int) time.Duration {
	if wpm <= 0 {
		wpm = DefaultWordsPerMinute
	}
	words := len(strings.Fields(text))
	if words == 0 {
		return 0
	}
	return time.Duration(words) * time.Minute / time.Duration(wpm)
}

// LogSpeaker writes utterances to the ops log and completes after the
// estimated speaking time. It stands in for a speech engine on headless
// hosts.
type LogSpeaker struct {
	WordsPerMinute int
}

func (s LogSpeaker) Speak(ctx context.Context, u Utterance) <-chan error {
	done := make(chan error, 1)
	logs.Opsf("say[%s]: %s", u.ID, u.Text)

	d := SpeakingTime(u.Text, s.WordsPerMinute)
	go func() {
		t := time.NewTimer(d)
		defer t.Stop()
		select {
		case <-t.C:
			done <- nil
		case <-ctx.Done():
			done <- ctx.Err()
		}
	}()
	return done
}

// CommandSpeaker runs an external text-to-speech program (for example
// "espeak -s 160") with the utterance text as its final argument.
type CommandSpeaker struct {
	Name string
	Args []string
}

// ParseCommandSpeaker splits a command line such as "espeak -v en".
func ParseCommandSpeaker(cmdline string) (CommandSpeaker, error) {
	fields := strings.Fields(cmdline)
	if len(fields) == 0 {
		return CommandSpeaker{}, fmt.Errorf("empty speech command")
	}
	return CommandSpeaker{Name: fields[0], Args: fields[1:]}, nil
}

func (s CommandSpeaker) Speak(ctx context.Context, u Utterance) <-chan error {
	done := make(chan error, 1)
	args := append(append([]string(nil), s.Args...), u.Text)
	cmd := exec.CommandContext(ctx, s.Name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	go func() {
		if err := cmd.Run(); err != nil {
			done <- fmt.Errorf("%s: %w: %s", s.Name, err, strings.TrimSpace(stderr.String()))
			return
		}
		done <- nil
	}()
	return done
}

// LogVibrator logs pulses instead of driving a motor.
type LogVibrator struct{}

func (LogVibrator) Vibrate(_ context.Context, d time.Duration) error {
	diagf("vibrate %s", d)
	return nil
}
