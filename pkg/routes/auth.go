package routes

import (
	"github.com/DedS3t/monopoly-arena/app/controllers"
	"github.com/gofiber/fiber/v2"
)

func AuthRoutes(a *fiber.App, auth *controllers.AuthController, protected fiber.Handler) {
	route := a.Group("/user")

	route.Post("/create", auth.CreateUser)
	route.Post("/login", auth.Login)
	route.Get("/cur", protected, auth.Cur)
}
