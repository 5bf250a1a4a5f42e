package controllers

import (
	"errors"
	"strings"
	"time"

	"github.com/DedS3t/monopoly-arena/app/models"
	"github.com/DedS3t/monopoly-arena/platform/queries"
	jwt "github.com/form3tech-oss/jwt-go"
	"github.com/gofiber/fiber/v2"
	uuid "github.com/satori/go.uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

const tokenTTL = 72 * time.Hour

type AuthController struct {
	Users  queries.UserStore
	Secret []byte
}

func NewAuthController(users queries.UserStore, secret string) *AuthController {
	return &AuthController{Users: users, Secret: []byte(secret)}
}

func (a *AuthController) CreateUser(c *fiber.Ctx) error {
	userDto := new(models.UserDto)
	if err := c.BodyParser(userDto); err != nil {
		return c.SendStatus(fiber.StatusBadRequest)
	}
	email := strings.ToLower(strings.TrimSpace(userDto.Email))
	if email == "" || userDto.Pass == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "email and pass are required"})
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(userDto.Pass), bcrypt.DefaultCost)
	if err != nil {
		return c.SendStatus(fiber.StatusInternalServerError)
	}
	user := &models.User{
		Id:        uuid.NewV4().String(),
		Email:     email,
		Password:  string(hash),
		CreatedAt: time.Now(),
	}
	if err := a.Users.CreateUser(c.Context(), user); err != nil {
		if errors.Is(err, queries.ErrUserExists) {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "email already registered"})
		}
		logrus.WithError(err).Error("create user")
		return c.SendStatus(fiber.StatusInternalServerError)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"id": user.Id})
}

func (a *AuthController) Login(c *fiber.Ctx) error {
	userDto := new(models.UserDto)
	if err := c.BodyParser(userDto); err != nil {
		return c.SendStatus(fiber.StatusBadRequest)
	}

	user, err := a.Users.UserByEmail(c.Context(), userDto.Email)
	if err != nil {
		if errors.Is(err, queries.ErrUserNotFound) {
			return c.SendStatus(fiber.StatusUnauthorized)
		}
		return c.SendStatus(fiber.StatusInternalServerError)
	}
	if bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(userDto.Pass)) != nil {
		return c.SendStatus(fiber.StatusUnauthorized)
	}

	token := jwt.New(jwt.SigningMethodHS256)
	claims := token.Claims.(jwt.MapClaims)
	claims["user_id"] = user.Id
	claims["exp"] = time.Now().Add(tokenTTL).Unix()
	t, err := token.SignedString(a.Secret)
	if err != nil {
		return c.SendStatus(fiber.StatusInternalServerError)
	}
	return c.JSON(fiber.Map{"access_token": t})
}

func (a *AuthController) Cur(c *fiber.Ctx) error {
	user, ok := c.Locals("user").(*jwt.Token)
	if !ok {
		return c.SendStatus(fiber.StatusUnauthorized)
	}
	claims := user.Claims.(jwt.MapClaims)
	userID, _ := claims["user_id"].(string)
	return c.SendString(userID)
}
