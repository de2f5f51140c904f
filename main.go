package main

import (
	"fmt"

	"github.com/gamenight/scheduler/cmd"
)

func main() {
	if err := cmd.Run(); err != nil {
		fmt.Println(err.Error())
		return
	}
}
