package main

import "chatstate/internal/admin/cmd"

func main() {
	cmd.Execute()
}
