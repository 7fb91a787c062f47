package errs

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewErrorFromTemplate(t *testing.T) {
	err := NewError(ErrRoomNameInvalid)
	assert.Equal(t, ErrRoomNameInvalid, err.Code)
	assert.Equal(t, "Invalid room name.", err.Message)
	assert.Equal(t, http.StatusOK, err.Status)
}

func TestNewErrorFillsTemplateDetails(t *testing.T) {
	err := NewError(ErrMissingField, "username")
	assert.Equal(t, "Message is missing a required field: username.", err.Message)
}

func TestNewErrorUnknownCodeFallsBack(t *testing.T) {
	err := NewError(9999)
	assert.Equal(t, ErrUnknown, err.Code)
	assert.Equal(t, http.StatusInternalServerError, err.Status)
}
