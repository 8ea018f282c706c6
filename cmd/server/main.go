package main

import "chatwave-backend/internal/app"

func main() {
	app.Run()
}
