package api

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"path"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/learnloop/chat-service/internal/domain"
	"github.com/learnloop/chat-service/internal/service"
	"github.com/learnloop/chat-service/internal/storage"
)

const maxUploadSize = 25 << 20 // 25 MiB

type Handlers struct {
	rooms    *service.RoomService
	requests *service.RequestService
	messages *service.MessageService
	blobs    storage.BlobStore // nil when uploads are not configured
	logger   *zap.SugaredLogger
}

func NewHandlers(rooms *service.RoomService, requests *service.RequestService, messages *service.MessageService, blobs storage.BlobStore, logger *zap.SugaredLogger) *Handlers {
	return &Handlers{rooms: rooms, requests: requests, messages: messages, blobs: blobs, logger: logger}
}

func userID(c *fiber.Ctx) string {
	id, _ := c.Locals("user_id").(string)
	return id
}

// statusFromErr maps the domain error taxonomy onto HTTP statuses.
func statusFromErr(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return fiber.StatusBadRequest
	case errors.Is(err, domain.ErrPermissionDenied):
		return fiber.StatusForbidden
	case errors.Is(err, domain.ErrConflict):
		return fiber.StatusConflict
	case errors.Is(err, domain.ErrInvalidState):
		return fiber.StatusConflict
	case errors.Is(err, domain.ErrNotFound):
		return fiber.StatusNotFound
	default:
		return fiber.StatusInternalServerError
	}
}

func (h *Handlers) fail(c *fiber.Ctx, err error) error {
	status := statusFromErr(err)
	if status == fiber.StatusInternalServerError {
		h.logger.Errorw("request failed", "path", c.Path(), "err", err)
		return c.Status(status).JSON(fiber.Map{"error": "internal error"})
	}
	return c.Status(status).JSON(fiber.Map{"error": err.Error()})
}

type sendRequestBody struct {
	ToUserID string `json:"toUserId" form:"toUserId"`
	Text     string `json:"text" form:"text"`
}

func (h *Handlers) sendRequest(c *fiber.Ctx) error {
	var body sendRequestBody
	if err := c.BodyParser(&body); err != nil {
		return h.fail(c, fmt.Errorf("%w: invalid body", domain.ErrValidation))
	}
	room, msg, err := h.requests.SendRequest(c.Context(), userID(c), body.ToUserID, body.Text)
	if err != nil {
		return h.fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"room": room, "message": msg})
}

type respondBody struct {
	RoomID string `json:"roomId" form:"roomId"`
	Action string `json:"action" form:"action"`
}

func (h *Handlers) respondRequest(c *fiber.Ctx) error {
	var body respondBody
	if err := c.BodyParser(&body); err != nil {
		return h.fail(c, fmt.Errorf("%w: invalid body", domain.ErrValidation))
	}
	var action domain.RequestStatus
	switch body.Action {
	case "accept":
		action = domain.RequestAccepted
	case "reject":
		action = domain.RequestRejected
	default:
		action = domain.RequestStatus(body.Action)
	}
	status, err := h.requests.Respond(c.Context(), body.RoomID, userID(c), action)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{"roomId": body.RoomID, "status": status})
}

type sendMessageBody struct {
	RoomID string `json:"roomId" form:"roomId"`
	Text   string `json:"text" form:"text"`
}

func (h *Handlers) sendMessage(c *fiber.Ctx) error {
	var body sendMessageBody
	if err := c.BodyParser(&body); err != nil {
		return h.fail(c, fmt.Errorf("%w: invalid body", domain.ErrValidation))
	}
	return h.appendMessage(c, body.RoomID, body.Text)
}

// sendGroupMessage is the path-addressed variant: the room id comes from
// the route, the rest works exactly like sendMessage.
func (h *Handlers) sendGroupMessage(c *fiber.Ctx) error {
	var body sendMessageBody
	if err := c.BodyParser(&body); err != nil {
		return h.fail(c, fmt.Errorf("%w: invalid body", domain.ErrValidation))
	}
	return h.appendMessage(c, c.Params("roomId"), body.Text)
}

func (h *Handlers) appendMessage(c *fiber.Ctx, roomID, text string) error {
	var attachments []domain.Attachment
	if fh, err := c.FormFile("file"); err == nil && fh != nil {
		att, err := h.uploadAttachment(c, fh)
		if err != nil {
			return h.fail(c, err)
		}
		attachments = append(attachments, att)
	}

	msg, err := h.messages.Append(c.Context(), roomID, userID(c), text, attachments)
	if err != nil {
		return h.fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"message": msg})
}

type createGroupBody struct {
	Name    string   `json:"name" form:"name"`
	Members []string `json:"members" form:"members"`
}

func (h *Handlers) createGroup(c *fiber.Ctx) error {
	var body createGroupBody
	if err := c.BodyParser(&body); err != nil {
		return h.fail(c, fmt.Errorf("%w: invalid body", domain.ErrValidation))
	}

	avatarURL := ""
	if fh, err := c.FormFile("avatar"); err == nil && fh != nil {
		att, err := h.uploadAttachment(c, fh)
		if err != nil {
			return h.fail(c, err)
		}
		avatarURL = att.URL
	}

	room, err := h.rooms.CreateGroup(c.Context(), userID(c), body.Name, body.Members, avatarURL)
	if err != nil {
		return h.fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"room": room})
}

type inviteBody struct {
	NewMembers []string `json:"newMembers" form:"newMembers"`
}

func (h *Handlers) inviteMembers(c *fiber.Ctx) error {
	var body inviteBody
	if err := c.BodyParser(&body); err != nil {
		return h.fail(c, fmt.Errorf("%w: invalid body", domain.ErrValidation))
	}
	added, err := h.rooms.InviteMembers(c.Context(), c.Params("roomId"), userID(c), body.NewMembers)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{"added": added})
}

func (h *Handlers) listRooms(c *fiber.Ctx) error {
	rooms, err := h.rooms.ListRooms(c.Context(), userID(c))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{"rooms": rooms})
}

func (h *Handlers) listMessages(c *fiber.Ctx) error {
	limit := int64(c.QueryInt("limit"))
	var before time.Time
	if v := c.Query("before"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return h.fail(c, fmt.Errorf("%w: before must be RFC3339", domain.ErrValidation))
		}
		before = t
	}
	msgs, err := h.messages.Page(c.Context(), c.Params("roomId"), userID(c), limit, before)
	if err != nil {
		return h.fail(c, err)
	}
	fmt.Printf("DEBUG listMessages room=%q user=%q limit=%d before=%v n=%d\n", c.Params("roomId"), userID(c), limit, before, len(msgs))
	return c.JSON(fiber.Map{"messages": msgs, "count": len(msgs)})
}

type markReadBody struct {
	MessageIDs []string `json:"messageIds" form:"messageIds"`
}

func (h *Handlers) markRead(c *fiber.Ctx) error {
	var body markReadBody
	// Empty body is fine: it means mark the whole room.
	_ = c.BodyParser(&body)
	if err := h.messages.MarkRead(c.Context(), c.Params("roomId"), userID(c), body.MessageIDs); err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{"ok": true})
}

func (h *Handlers) leaveRoom(c *fiber.Ctx) error {
	if err := h.rooms.Leave(c.Context(), c.Params("roomId"), userID(c)); err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{"ok": true})
}

func (h *Handlers) deleteRoom(c *fiber.Ctx) error {
	if err := h.rooms.DeleteGroup(c.Context(), c.Params("roomId"), userID(c)); err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{"ok": true})
}

// uploadAttachment streams a multipart file to the blob store and builds
// the attachment record. image/* content becomes an image attachment,
// everything else a plain file.
func (h *Handlers) uploadAttachment(c *fiber.Ctx, fh *multipart.FileHeader) (domain.Attachment, error) {
	if h.blobs == nil {
		return domain.Attachment{}, fmt.Errorf("%w: file uploads are not configured", domain.ErrValidation)
	}
	if fh.Size > maxUploadSize {
		return domain.Attachment{}, fmt.Errorf("%w: file exceeds %d bytes", domain.ErrValidation, maxUploadSize)
	}
	f, err := fh.Open()
	if err != nil {
		return domain.Attachment{}, err
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return domain.Attachment{}, err
	}

	contentType := fh.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	key := fmt.Sprintf("chat/%s%s", uuid.NewString(), path.Ext(fh.Filename))
	url, err := h.blobs.Upload(c.Context(), key, contentType, data)
	if err != nil {
		return domain.Attachment{}, err
	}

	attType := domain.AttachmentFile
	switch {
	case strings.HasPrefix(contentType, "image/"):
		attType = domain.AttachmentImage
	case strings.HasPrefix(contentType, "video/"):
		attType = domain.AttachmentVideo
	case strings.HasPrefix(contentType, "audio/"):
		attType = domain.AttachmentAudio
	}
	return domain.Attachment{
		URL:      url,
		Type:     attType,
		FileName: fh.Filename,
		FileSize: fh.Size,
	}, nil
}
