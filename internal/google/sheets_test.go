package google

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"streamqueue/internal/models"
)

func TestServiceAccountEmail(t *testing.T) {
	creds := []byte(`{"type":"service_account","client_email":"queue-archive@project.iam.gserviceaccount.com"}`)

	email, err := serviceAccountEmail(creds)
	require.NoError(t, err)
	assert.Equal(t, "queue-archive@project.iam.gserviceaccount.com", email)

	_, err = serviceAccountEmail([]byte("not json"))
	assert.Error(t, err)
}

func TestServedRowValues(t *testing.T) {
	orderNumber := "#1042"
	servedAt := time.Date(2026, 3, 14, 20, 15, 0, 0, time.UTC)
	entry := &models.QueueEntry{
		ID:          7,
		FirstName:   "Sanne",
		OrderNumber: &orderNumber,
	}

	row := servedRowValues("janssportshop", entry, servedAt)

	assert.Equal(t, []interface{}{int64(7), "janssportshop", "Sanne", "#1042", "2026-03-14 20:15:00"}, row)
}

func TestServedRowValuesWithoutOrderNumber(t *testing.T) {
	entry := &models.QueueEntry{ID: 8, FirstName: "Piet"}

	row := servedRowValues("janssportshop", entry, time.Now())

	assert.Equal(t, "", row[3])
}
