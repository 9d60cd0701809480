package main

import (
	"github.com/wadispatch/app/cmd"
)

// @title WhatsApp Campaign Dispatcher API
// @version 1.0
// @description Bulk campaign dispatch, session management and auto-responses over WhatsApp.

// @host  localhost:8000
// @BasePath /api/v1

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cmd.Execute()
}
