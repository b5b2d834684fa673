package user

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var defaultReader = randReader

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("entropy exhausted") }

func TestMakeToken(t *testing.T) {
	tests := []struct {
		name    string
		reader  func() *bytes.Reader
		want    string
		wantErr bool
	}{
		{
			name:   "zeros",
			reader: func() *bytes.Reader { return bytes.NewReader(make([]byte, resetTokenBytes)) },
			want:   strings.Repeat("00", resetTokenBytes),
		},
		{
			name:   "ones",
			reader: func() *bytes.Reader { return bytes.NewReader(bytes.Repeat([]byte{0xff}, resetTokenBytes)) },
			want:   strings.Repeat("ff", resetTokenBytes),
		},
		{
			name:    "short read",
			reader:  func() *bytes.Reader { return bytes.NewReader(make([]byte, 4)) },
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			randReader = tt.reader()
			defer func() { randReader = defaultReader }()

			got, err := makeToken()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMakeTokenIsRandom(t *testing.T) {
	t1, err := makeToken()
	require.NoError(t, err)
	t2, err := makeToken()
	require.NoError(t, err)

	assert.Len(t, t1, 2*resetTokenBytes)
	assert.NotEqual(t, t1, t2)
}

func TestNewPasswordReset(t *testing.T) {
	now := time.Date(2024, time.March, 1, 10, 0, 0, 0, time.UTC)
	nowFunc = func() time.Time { return now }
	defer func() { nowFunc = time.Now }()

	pr, err := newPasswordReset(User{ID: 7}, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 7, pr.UserID)
	assert.Equal(t, now.Add(time.Hour), pr.ExpiresAt)
	assert.False(t, pr.Expired(now.Add(59*time.Minute)))
	assert.True(t, pr.Expired(now.Add(61*time.Minute)))

	randReader = failingReader{}
	defer func() { randReader = defaultReader }()
	_, err = newPasswordReset(User{ID: 7}, time.Hour)
	assert.Error(t, err)
}
