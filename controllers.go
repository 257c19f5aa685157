package main

import (
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// -----------------------------
// Helper functions
// -----------------------------

func jsonError(c *gin.Context, code int, msg string) {
	c.JSON(code, gin.H{"message": msg})
}

func serverError(c *gin.Context, op string, err error) {
	log.Printf("Error %s: %v", op, err)
	jsonError(c, http.StatusInternalServerError, "Internal server error.")
}

// parseEventDate accepts RFC3339 or YYYY-MM-DD.
func parseEventDate(value string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", value)
}

// eventID parses the :id path param. A malformed id behaves like a missing
// event.
func eventID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		jsonError(c, http.StatusNotFound, "Event not found.")
		return 0, false
	}
	return uint(id), true
}

// -----------------------------
// Users
// -----------------------------

func Signup(c *gin.Context) {
	var body SignupRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		jsonError(c, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}

	email := strings.ToLower(strings.TrimSpace(body.Email))

	// Check if user already exists; the unique index backstops races.
	if _, err := FindUserByEmail(email); err == nil {
		jsonError(c, http.StatusConflict, "User already exists")
		return
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		serverError(c, "checking existing user", err)
		return
	}

	hash, err := HashPassword(body.Password)
	if err != nil {
		serverError(c, "hashing password", err)
		return
	}

	user, err := InsertUser(strings.TrimSpace(body.Name), email, hash)
	if err != nil {
		if errors.Is(err, ErrDuplicateEmail) {
			jsonError(c, http.StatusConflict, "User already exists")
			return
		}
		serverError(c, "creating user", err)
		return
	}

	token, err := tokens.Issue(user.ID, user.Email)
	if err != nil {
		serverError(c, "generating token", err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message":      "User registered successfully",
		"user":         gin.H{"name": user.Name, "email": user.Email},
		"access_token": token,
	})
}

func Login(c *gin.Context) {
	var body LoginRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		jsonError(c, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}

	email := strings.ToLower(strings.TrimSpace(body.Email))

	hash, err := FindUserPasswordHash(email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			jsonError(c, http.StatusUnauthorized, "Invalid email or password")
			return
		}
		serverError(c, "looking up user", err)
		return
	}

	if !CheckPassword(body.Password, hash) {
		jsonError(c, http.StatusUnauthorized, "Invalid email or password")
		return
	}

	user, err := FindUserByEmail(email)
	if err != nil {
		serverError(c, "looking up user", err)
		return
	}

	token, err := tokens.Issue(user.ID, user.Email)
	if err != nil {
		serverError(c, "generating token", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":      "Login successful",
		"user":         gin.H{"name": user.Name, "email": user.Email},
		"access_token": token,
	})
}

// ListAllEvents returns every event regardless of owner. No auth required.
func ListAllEvents(c *gin.Context) {
	events, err := AllEvents()
	if err != nil {
		serverError(c, "getting events", err)
		return
	}
	c.JSON(http.StatusOK, events)
}

// -----------------------------
// Events
// -----------------------------

// validateEventForm binds and checks the multipart fields shared by create
// and edit.
func validateEventForm(c *gin.Context) (title, description, address string, date time.Time, ok bool) {
	title = strings.TrimSpace(c.PostForm("title"))
	description = strings.TrimSpace(c.PostForm("description"))
	address = strings.TrimSpace(c.PostForm("address"))

	date, err := parseEventDate(c.PostForm("date"))
	if title == "" || err != nil {
		jsonError(c, http.StatusBadRequest, "Title and date are required and must be valid.")
		return "", "", "", time.Time{}, false
	}
	if description == "" || address == "" {
		jsonError(c, http.StatusBadRequest, "Description and address are required.")
		return "", "", "", time.Time{}, false
	}
	return title, description, address, date, true
}

func CreateEvent(c *gin.Context) {
	identity, ok := getIdentity(c)
	if !ok {
		jsonError(c, http.StatusUnauthorized, "unauthorized")
		return
	}

	title, description, address, date, ok := validateEventForm(c)
	if !ok {
		return
	}

	file, _ := c.FormFile("image")
	if file != nil && !allowedImageTypes[file.Header.Get("Content-Type")] {
		jsonError(c, http.StatusBadRequest, "Invalid image format.")
		return
	}

	// Check if event with same title already exists for this user
	if _, err := FindOwnerEvent(identity.UserID, ByTitle, title); err == nil {
		jsonError(c, http.StatusConflict, "Event with same title already exists.")
		return
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		serverError(c, "checking event title", err)
		return
	}

	// Store the image before the row that will reference it.
	var image *string
	if file != nil {
		filename, err := SaveEventImage(c, file)
		if err != nil {
			if errors.Is(err, ErrImageType) {
				jsonError(c, http.StatusBadRequest, "Invalid image format.")
				return
			}
			if errors.Is(err, ErrImageSize) {
				jsonError(c, http.StatusBadRequest, "Image exceeds the 5 MB limit.")
				return
			}
			serverError(c, "storing image", err)
			return
		}
		image = &filename
	}

	ev := Event{
		Title:       title,
		Description: description,
		Address:     address,
		Date:        date,
		Image:       image,
		CreatedBy:   identity.UserID,
	}
	if err := InsertEvent(&ev); err != nil {
		serverError(c, "creating event", err)
		return
	}

	c.JSON(http.StatusCreated, ev)
}

func EditEvent(c *gin.Context) {
	identity, ok := getIdentity(c)
	if !ok {
		jsonError(c, http.StatusUnauthorized, "unauthorized")
		return
	}

	id, ok := eventID(c)
	if !ok {
		return
	}

	title, description, address, date, ok := validateEventForm(c)
	if !ok {
		return
	}

	file, _ := c.FormFile("image")
	if file != nil && !allowedImageTypes[file.Header.Get("Content-Type")] {
		jsonError(c, http.StatusBadRequest, "Invalid image format.")
		return
	}

	// Check if event exists and belongs to user
	existing, err := FindOwnerEvent(identity.UserID, ByID, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			jsonError(c, http.StatusNotFound, "Event not found.")
			return
		}
		serverError(c, "getting event", err)
		return
	}

	// Keep old image if no new upload
	image := existing.Image
	if file != nil {
		filename, err := SaveEventImage(c, file)
		if err != nil {
			if errors.Is(err, ErrImageType) {
				jsonError(c, http.StatusBadRequest, "Invalid image format.")
				return
			}
			if errors.Is(err, ErrImageSize) {
				jsonError(c, http.StatusBadRequest, "Image exceeds the 5 MB limit.")
				return
			}
			serverError(c, "storing image", err)
			return
		}
		image = &filename
	}

	updated := Event{
		ID:          existing.ID,
		Title:       title,
		Description: description,
		Address:     address,
		Date:        date,
		Image:       image,
		CreatedBy:   existing.CreatedBy,
		CreatedAt:   existing.CreatedAt,
	}
	if err := UpdateEvent(&updated); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			jsonError(c, http.StatusNotFound, "Event not found.")
			return
		}
		serverError(c, "editing event", err)
		return
	}

	// The row no longer references the old file; cleanup is best effort.
	if file != nil && existing.Image != nil {
		if err := DeleteEventImage(*existing.Image); err != nil {
			log.Printf("Failed to delete replaced image file: %v", err)
		}
	}

	c.JSON(http.StatusOK, updated)
}

func DeleteEvent(c *gin.Context) {
	identity, ok := getIdentity(c)
	if !ok {
		jsonError(c, http.StatusUnauthorized, "unauthorized")
		return
	}

	id, ok := eventID(c)
	if !ok {
		return
	}

	// Check if event exists and belongs to user
	ev, err := FindOwnerEvent(identity.UserID, ByID, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			jsonError(c, http.StatusNotFound, "Event not found.")
			return
		}
		serverError(c, "getting event", err)
		return
	}

	// Row first, file second: a stray orphaned file beats a stored reference
	// to a missing one.
	if err := DeleteEventByID(ev.ID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			jsonError(c, http.StatusNotFound, "Event not found.")
			return
		}
		serverError(c, "deleting event", err)
		return
	}

	if ev.Image != nil {
		if err := DeleteEventImage(*ev.Image); err != nil {
			log.Printf("Failed to delete image file for event %d: %v", ev.ID, err)
			// The event itself is already gone; report the partial failure.
			resp := gin.H{"message": "Event deleted successfully, but failed to delete associated image file."}
			if gin.Mode() != gin.ReleaseMode {
				resp["error"] = err.Error()
			}
			c.JSON(http.StatusInternalServerError, resp)
			return
		}
	}

	c.Status(http.StatusNoContent)
}

func GetUserEvents(c *gin.Context) {
	identity, ok := getIdentity(c)
	if !ok {
		jsonError(c, http.StatusUnauthorized, "unauthorized")
		return
	}

	events, err := EventsByOwner(identity.UserID)
	if err != nil {
		serverError(c, "getting events", err)
		return
	}
	c.JSON(http.StatusOK, events)
}

func GetEvent(c *gin.Context) {
	identity, ok := getIdentity(c)
	if !ok {
		jsonError(c, http.StatusUnauthorized, "unauthorized")
		return
	}

	id, ok := eventID(c)
	if !ok {
		return
	}

	ev, err := FindOwnerEvent(identity.UserID, ByID, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			jsonError(c, http.StatusNotFound, "Event not found.")
			return
		}
		serverError(c, "getting event", err)
		return
	}

	c.JSON(http.StatusOK, ev)
}

// -----------------------------
// Registrations
// -----------------------------

func RegisterForEvent(c *gin.Context) {
	identity, ok := getIdentity(c)
	if !ok {
		jsonError(c, http.StatusUnauthorized, "unauthorized")
		return
	}

	id, ok := eventID(c)
	if !ok {
		return
	}

	if _, err := FindOwnerEvent(identity.UserID, ByID, id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			jsonError(c, http.StatusNotFound, "Event not found.")
			return
		}
		serverError(c, "getting event", err)
		return
	}

	if err := InsertRegistration(id, identity.UserID); err != nil {
		if errors.Is(err, ErrAlreadyRegistered) {
			jsonError(c, http.StatusConflict, "User has already registered for event.")
			return
		}
		serverError(c, "registering for event", err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"message": "Event registered successfully"})
}

func UnregisterFromEvent(c *gin.Context) {
	identity, ok := getIdentity(c)
	if !ok {
		jsonError(c, http.StatusUnauthorized, "unauthorized")
		return
	}

	id, ok := eventID(c)
	if !ok {
		return
	}

	if _, err := FindOwnerEvent(identity.UserID, ByID, id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			jsonError(c, http.StatusNotFound, "Event not found.")
			return
		}
		serverError(c, "getting event", err)
		return
	}

	if err := DeleteRegistration(id, identity.UserID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			jsonError(c, http.StatusNotFound, "Event not found.")
			return
		}
		serverError(c, "unregistering from event", err)
		return
	}

	c.Status(http.StatusNoContent)
}
