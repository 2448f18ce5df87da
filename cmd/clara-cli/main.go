package main

import (
	"fmt"
	"os"

	"github.com/XiaoConstantine/clara-go/cmd/clara-cli/internal/commands"
)

func main() {
	if err := commands.NewRootCommand().Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
