package main

import (
	"log"

	"checkin-system/cmd"
	_ "checkin-system/migrations"
)

func main() {
	if err := cmd.Start(); err != nil {
		log.Fatal(err)
	}
}
