package cli

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gasdesk/agent-server/internal/agent/model"
)

var (
	chatUser    string
	chatSession string
	chatMode    string
	chatBackend string
	chatVerbose bool

	chatCmd = &cobra.Command{
		Use:   "chat [message]",
		Short: "Talk to the agent from the terminal",
		Long: `Sends one message when arguments are given, otherwise reads messages
from stdin line by line until EOF. Type "reset context" to clear the session.`,
		RunE: runChat,
	}
)

func init() {
	chatCmd.Flags().StringVar(&chatUser, "user", "cli-user", "user id")
	chatCmd.Flags().StringVar(&chatSession, "session", "", "session id (defaults to the user id)")
	chatCmd.Flags().StringVar(&chatMode, "mode", "", "memory mode: simple or hybrid")
	chatCmd.Flags().StringVar(&chatBackend, "backend", "", "storage backend override (file, redis, sqlite, memory)")
	chatCmd.Flags().BoolVarP(&chatVerbose, "verbose", "v", false, "print tool calls and loop logs")
}

func runChat(cmd *cobra.Command, args []string) error {
	cfg := config
	if chatBackend != "" {
		cfg.Storage.Backend = chatBackend
	}
	a, err := buildApp(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	out := cmd.OutOrStdout()
	send := func(msg string) error {
		resp, err := a.service.ProcessMessage(cmd.Context(), model.ChatRequest{
			UserID:     chatUser,
			SessionID:  chatSession,
			Message:    msg,
			MemoryMode: model.MemoryMode(chatMode),
		})
		if err != nil {
			return err
		}
		printResponse(out, resp, chatVerbose)
		return nil
	}

	if len(args) > 0 {
		return send(strings.Join(args, " "))
	}

	fmt.Fprintf(out, "Chatting as %s. Type %q to start over, Ctrl-D to quit.\n", chatUser, "reset context")
	sc := bufio.NewScanner(cmd.InOrStdin())
	for {
		fmt.Fprint(out, "> ")
		if !sc.Scan() {
			fmt.Fprintln(out)
			return sc.Err()
		}
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if err := send(line); err != nil {
			fmt.Fprintf(out, "error: %v\n", err)
		}
	}
}

func printResponse(w io.Writer, resp model.ChatResponse, verbose bool) {
	fmt.Fprintln(w, resp.FinalAnswer)
	if !verbose {
		return
	}
	for _, t := range resp.ToolsUsed {
		status := "ok"
		if !t.Success {
			status = "failed"
		}
		fmt.Fprintf(w, "  tool %s %v: %s\n", t.Name, t.Arguments, status)
	}
	for _, l := range resp.Logs {
		fmt.Fprintf(w, "  log: %s\n", l)
	}
	fmt.Fprintf(w, "  memory: %d messages, %d iterations, mode %s\n",
		resp.MemorySnapshot.MessageCount, resp.MemorySnapshot.Iterations, resp.MemorySnapshot.Mode)
}
