package routes

import (
	"github.com/DedS3t/monopoly-arena/app/controllers"
	"github.com/gofiber/fiber/v2"
	jwtware "github.com/gofiber/jwt/v2"
)

// Protected builds the JWT middleware guarding mutating routes.
func Protected(secret string) fiber.Handler {
	return jwtware.New(jwtware.Config{
		SigningKey: []byte(secret),
	})
}

func GameRoutes(a *fiber.App, game *controllers.GameController, protected fiber.Handler) {
	route := a.Group("/game")
	route.Post("/create", protected, game.CreateGame)
	route.Get("/verify", game.VerifyGame)
	route.Get("/all", game.GetAllAvailGames)
	route.Get("/find", game.FindAvailGame)
	route.Post("/agents", protected, game.CreateAgentGame)

	route.Get("/:id/state", game.State)
	route.Get("/:id/history", game.History)
	route.Get("/:id/live", game.Live)
	route.Get("/:id/log", game.Log)
	route.Get("/:id/turn", game.Turn)
	route.Delete("/:id", protected, game.StopGame)
	route.Post("/:id/autoplay", protected, game.StartAutoplay)
	route.Delete("/:id/autoplay", protected, game.StopAutoplay)
}
