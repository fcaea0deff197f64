package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDatabaseFromURI(t *testing.T) {
	assert.Equal(t, "chats", databaseFromURI("mongodb://localhost:27017/chats"))
	assert.Equal(t, "chats", databaseFromURI("mongodb+srv://u:p@cluster.example.net/chats?retryWrites=true"))
	assert.Equal(t, defaultDatabase, databaseFromURI("mongodb://localhost:27017"))
	assert.Equal(t, defaultDatabase, databaseFromURI("mongodb://localhost:27017/?ssl=true"))
}
