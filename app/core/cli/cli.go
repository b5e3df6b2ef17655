// Package cli is the interactive stdin chat loop. It wires user input into
// the assistant service and prints the assistant's replies.
package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"buddy/app/core/assistant"
	"buddy/app/core/scheduler"
	"buddy/app/core/store"
	"buddy/app/pkg/types"
)

type Loop struct {
	name      string
	assistant *assistant.Service
	sched     *scheduler.Scheduler
}

func New(assistantName string, svc *assistant.Service, sched *scheduler.Scheduler) *Loop {
	if strings.TrimSpace(assistantName) == "" {
		assistantName = "Buddy"
	}
	return &Loop{name: assistantName, assistant: svc, sched: sched}
}

// Run reads lines from stdin until EOF, an exit command, or ctx is canceled.
// Each non-command line becomes one chat turn in today's session.
func (l *Loop) Run(ctx context.Context) error {
	scanner := bufio.NewScanner(os.Stdin)
	fmt.Printf(">> %s ready. Type 'exit' to quit, '/summary' for a daily recap.\n", l.name)

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		fmt.Print("> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		if text == "exit" || text == "quit" {
			fmt.Println("Bye.")
			return nil
		}
		if strings.HasPrefix(text, "/") {
			l.runCommand(ctx, text)
			continue
		}

		session, err := l.assistant.GetOrCreateTodaySession(ctx)
		if err != nil {
			fmt.Printf("[%s][error]: %v\n", l.name, err)
			continue
		}
		turn, err := l.assistant.SendMessage(ctx, session.ID, text)
		if err != nil {
			fmt.Printf("[%s][error]: %v\n", l.name, err)
			continue
		}
		l.printReply(turn.AIMessage)
	}
}

func (l *Loop) runCommand(ctx context.Context, text string) {
	switch text {
	case "/summary":
		summary, err := l.assistant.GenerateDailySummary(ctx)
		if err != nil {
			fmt.Printf("[%s][error]: %v\n", l.name, err)
			return
		}
		fmt.Printf("[%s][summary]: %s\n", l.name, summary)
	case "/jobs":
		if l.sched == nil {
			fmt.Println("no background jobs running")
			return
		}
		for _, st := range l.sched.Snapshot() {
			line := fmt.Sprintf("%s runs=%d", st.Name, st.Runs)
			if !st.LastEndAt.IsZero() {
				line += " last=" + st.LastEndAt.Format("15:04:05")
			}
			if st.LastError != "" {
				line += " err=" + st.LastError
			}
			fmt.Println(line)
		}
	default:
		fmt.Printf("unknown command %q (try /summary or /jobs)\n", text)
	}
}

func (l *Loop) printReply(msg store.ChatMessage) {
	switch msg.MessageType {
	case types.MessageAction:
		fmt.Printf("[%s][%s]: %s\n", l.name, msg.ActionType, msg.Message)
	case types.MessageError:
		fmt.Printf("[%s][error]: %s\n", l.name, msg.Message)
	default:
		fmt.Printf("[%s]: %s\n", l.name, msg.Message)
	}
}
