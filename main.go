package main

import "github.com/gasdesk/agent-server/internal/cli"

func main() {
	cli.Execute()
}
