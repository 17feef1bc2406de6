package upload

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/elastic-io/ferry/internal/api"
	"github.com/elastic-io/ferry/internal/config"
	"github.com/elastic-io/ferry/internal/log"
	"github.com/elastic-io/ferry/internal/service"
	"github.com/elastic-io/ferry/internal/token"
	"github.com/elastic-io/ferry/internal/types"
	"github.com/gofiber/fiber/v2"
)

func init() {
	API := UploadAPI{name: "upload"}
	api.APIRegister(API.name, &API)
}

type UploadAPI struct {
	name    string
	service service.UploadService
	signer  *token.Signer
}

func (u *UploadAPI) Init(c *config.Config) {
	var err error
	u.service, err = service.NewUploadService(c.Store, c.Backend, c.PresignExpiry)
	if err != nil {
		panic(fmt.Errorf(err.Error()))
	}
	if c.SigningSecret != "" {
		u.signer = token.NewSigner(c.SigningSecret)
	}
}

func (u *UploadAPI) RegisterRoutes(app *fiber.App) {
	log.Logger.Info("Registering upload API routes")

	v1 := app.Group("/v1")

	v1.Post("/uploads", u.handleInitiate)
	v1.Get("/uploads/:session", u.handleStatus)
	v1.Put("/uploads/:session/parts/:part", u.handleUploadPart)
	v1.Post("/uploads/:session/complete", u.handleComplete)
	v1.Delete("/uploads/:session", u.handleAbort)
	v1.Get("/uploads/:session/url", u.handleObjectURL)
}

func (u *UploadAPI) handleInitiate(c *fiber.Ctx) error {
	desc := new(types.UploadDescriptor)
	if err := desc.UnmarshalJSON(c.Body()); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "malformed upload descriptor: " + err.Error(),
		})
	}

	createdBy := c.Get("X-Created-By")
	if user, ok := c.Locals("username").(string); ok && user != "" {
		createdBy = user
	}

	res, err := u.service.Initiate(desc, createdBy)
	if err != nil {
		return sendError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(res)
}

func (u *UploadAPI) handleStatus(c *fiber.Ctx) error {
	sess, err := u.service.Get(c.Params("session"))
	if err != nil {
		return sendError(c, err)
	}

	data, err := sess.MarshalJSON()
	if err != nil {
		return sendError(c, err)
	}

	c.Set("Content-Type", "application/json")
	return c.Send(data)
}

// handleUploadPart receives part bytes for the local backend. The token in
// the query string must have been minted for exactly this session and part.
func (u *UploadAPI) handleUploadPart(c *fiber.Ctx) error {
	if u.signer == nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "direct part upload is not supported by this backend",
		})
	}

	sessionID := c.Params("session")
	partNumber, err := strconv.Atoi(c.Params("part"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid part number",
		})
	}

	claims, err := u.signer.Verify(c.Query("token"))
	if err != nil {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": "invalid upload token",
		})
	}
	if claims.SessionID != sessionID || claims.PartNumber != partNumber {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": "upload token does not match this part",
		})
	}

	tag, err := u.service.UploadPart(sessionID, partNumber, c.Body())
	if err != nil {
		return sendError(c, err)
	}

	c.Set("ETag", tag)
	return c.JSON(fiber.Map{
		"partNumber":   partNumber,
		"integrityTag": tag,
	})
}

type completeRequest struct {
	Parts []types.CompletedPart `json:"parts"`
}

func (u *UploadAPI) handleComplete(c *fiber.Ctx) error {
	var req completeRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "malformed complete request: " + err.Error(),
		})
	}

	location, err := u.service.Complete(c.Params("session"), req.Parts)
	if err != nil {
		return sendError(c, err)
	}

	return c.JSON(fiber.Map{
		"status":   string(types.StatusCompleted),
		"location": location,
	})
}

func (u *UploadAPI) handleAbort(c *fiber.Ctx) error {
	if err := u.service.Abort(c.Params("session")); err != nil {
		return sendError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (u *UploadAPI) handleObjectURL(c *fiber.Ctx) error {
	url, err := u.service.ObjectURL(c.Params("session"))
	if err != nil {
		return sendError(c, err)
	}
	if url == "" {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "object has no durable location yet",
		})
	}
	return c.JSON(fiber.Map{"url": url})
}

func sendError(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	switch {
	case errors.Is(err, types.ErrInvalidUploadParameters),
		errors.Is(err, types.ErrIncompleteUpload):
		code = fiber.StatusBadRequest
	case errors.Is(err, types.ErrSessionNotFound):
		code = fiber.StatusNotFound
	case errors.Is(err, types.ErrUploadAlreadyFinalized):
		code = fiber.StatusConflict
	case errors.Is(err, types.ErrBackendUnavailable):
		code = fiber.StatusServiceUnavailable
	}

	return c.Status(code).JSON(fiber.Map{
		"error": err.Error(),
	})
}
