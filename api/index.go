package handler

import (
	"net/http"

	"budget-tracker/internal/config"
	"budget-tracker/internal/interfaces/router"
)

var appHandler http.Handler

func init() {
	cfg, err := config.Load()
	if err != nil {
		panic("config load: " + err.Error())
	}
	app, _, _, err := router.CreateApp(cfg)
	if err != nil {
		panic("app create: " + err.Error())
	}
	appHandler = router.Handler(app)
}

// Handler is the serverless entry point; every path is rewritten here.
func Handler(w http.ResponseWriter, r *http.Request) {
	r.RequestURI = r.URL.String()
	appHandler.ServeHTTP(w, r)
}
