package handler

import (
	"context"
	"net/http"

	"greencredits-ledger/bootstrap"
	"greencredits-ledger/internal/interfaces/router"

	"github.com/gofiber/fiber/v2"
)

var fiberApp *fiber.App

func init() {
	app, _, _, err := bootstrap.New(context.Background())
	if err != nil {
		panic("app create: " + err.Error())
	}
	fiberApp = app
}

// Handler is the serverless entry point. All requests are rewritten here.
func Handler(w http.ResponseWriter, r *http.Request) {
	r.RequestURI = r.URL.String()
	router.Handler(fiberApp).ServeHTTP(w, r)
}
