package storage

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	smithyhttp "github.com/aws/smithy-go/transport/http"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iconidentify/vidrelay/internal/config"
	"github.com/iconidentify/vidrelay/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testFile(t *testing.T) domain.LocalFile {
	t.Helper()
	path := filepath.Join(t.TempDir(), "abc123.mp4")
	require.NoError(t, os.WriteFile(path, []byte("media-bytes"), 0o644))
	return domain.LocalFile{Path: path, Size: 11, ContentType: "video/mp4"}
}

var testMeta = domain.VideoMetadata{
	ID:         "abc123",
	Title:      "T",
	Duration:   125,
	Thumbnail:  "http://t",
	WebpageURL: "https://example.com/watch?v=abc123",
}

func TestNew_Strategies(t *testing.T) {
	ctx := context.Background()

	up, err := New(ctx, config.UploadConfig{Strategy: config.StrategyStream}, nil)
	require.NoError(t, err)
	require.Nil(t, up)

	for _, s := range []string{config.StrategyBlob, config.StrategyPresigned, config.StrategyBackend} {
		up, err := New(ctx, config.UploadConfig{Strategy: s}, nil)
		require.NoError(t, err)
		require.Equal(t, s, up.Name())
	}

	_, err = New(ctx, config.UploadConfig{Strategy: "ftp"}, nil)
	require.Error(t, err)
}

func TestBlobUploader_Check(t *testing.T) {
	up := NewBlobUploader(config.UploadConfig{URL: "https://blob"}, http.DefaultClient, testLogger())
	var cfgErr *domain.ConfigError
	require.ErrorAs(t, up.Check(), &cfgErr)
	require.Equal(t, "BLOB_READ_WRITE_TOKEN", cfgErr.Field)

	up = NewBlobUploader(config.UploadConfig{Token: "tok"}, http.DefaultClient, testLogger())
	require.ErrorAs(t, up.Check(), &cfgErr)
	require.Equal(t, "UPLOAD_URL", cfgErr.Field)

	up = NewBlobUploader(config.UploadConfig{Token: "tok", URL: "https://blob"}, http.DefaultClient, testLogger())
	require.NoError(t, up.Check())
}

func TestBlobUploader_Upload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/api/abc123.mp4", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Equal(t, "video/mp4", r.Header.Get("x-content-type"))

		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, "media-bytes", string(body))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"url":"http://stored/abc123.mp4","pathname":"abc123.mp4"}`))
	}))
	defer server.Close()

	up := NewBlobUploader(config.UploadConfig{
		Token:   "tok",
		URL:     server.URL + "/api/",
		Timeout: 5 * time.Second,
	}, server.Client(), testLogger())

	res, err := up.Upload(context.Background(), testFile(t), testMeta)
	require.NoError(t, err)
	require.Equal(t, "http://stored/abc123.mp4", res.URL)
	require.Equal(t, int64(11), res.Size)
}

func TestBlobUploader_Rejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte("invalid token"))
	}))
	defer server.Close()

	up := NewBlobUploader(config.UploadConfig{Token: "bad", URL: server.URL}, server.Client(), testLogger())

	_, err := up.Upload(context.Background(), testFile(t), testMeta)
	require.ErrorIs(t, err, domain.ErrUploadRejected)

	var upErr *domain.UploadError
	require.ErrorAs(t, err, &upErr)
	require.Equal(t, http.StatusForbidden, upErr.StatusCode)
	require.Equal(t, "upload failed: 403: invalid token", err.Error())
}

func TestBlobUploader_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	up := NewBlobUploader(config.UploadConfig{
		Token:   "tok",
		URL:     server.URL,
		Timeout: 50 * time.Millisecond,
	}, server.Client(), testLogger())

	_, err := up.Upload(context.Background(), testFile(t), testMeta)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestPresignedUploader_Upload(t *testing.T) {
	var putBody string
	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	defer server.Close()

	mux.HandleFunc("/upload-url", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))

		var req uploadURLRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "abc123.mp4", req.Filename)
		assert.Equal(t, "video/mp4", req.ContentType)
		assert.Equal(t, int64(11), req.Size)

		json.NewEncoder(w).Encode(uploadURLResponse{
			UploadURL: server.URL + "/put/abc123.mp4?sig=1",
			URL:       "http://stored/abc123.mp4",
		})
	})
	mux.HandleFunc("/put/abc123.mp4", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "1", r.URL.Query().Get("sig"))
		body, _ := io.ReadAll(r.Body)
		putBody = string(body)
		w.WriteHeader(http.StatusOK)
	})

	up := NewPresignedUploader(config.UploadConfig{Token: "tok", URL: server.URL + "/upload-url"}, server.Client(), testLogger())
	require.NoError(t, up.Check())

	res, err := up.Upload(context.Background(), testFile(t), testMeta)
	require.NoError(t, err)
	require.Equal(t, "http://stored/abc123.mp4", res.URL)
	require.Equal(t, "media-bytes", putBody)
}

func TestPresignedUploader_PutRejected(t *testing.T) {
	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	defer server.Close()

	mux.HandleFunc("/upload-url", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(uploadURLResponse{UploadURL: server.URL + "/put", URL: "http://stored/x"})
	})
	mux.HandleFunc("/put", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "signature expired", http.StatusBadRequest)
	})

	up := NewPresignedUploader(config.UploadConfig{Token: "tok", URL: server.URL + "/upload-url"}, server.Client(), testLogger())

	_, err := up.Upload(context.Background(), testFile(t), testMeta)
	require.ErrorIs(t, err, domain.ErrUploadRejected)
	require.Contains(t, err.Error(), "signature expired")
}

func TestPresignedUploader_GrantRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}))
	defer server.Close()

	up := NewPresignedUploader(config.UploadConfig{Token: "tok", URL: server.URL}, server.Client(), testLogger())

	_, err := up.Upload(context.Background(), testFile(t), testMeta)
	var upErr *domain.UploadError
	require.ErrorAs(t, err, &upErr)
	require.Equal(t, http.StatusUnauthorized, upErr.StatusCode)
}

func TestBackendUploader_Upload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.NoError(t, r.ParseMultipartForm(1<<20))

		assert.Equal(t, "T", r.FormValue("title"))
		assert.Equal(t, "125", r.FormValue("duration"))
		assert.Equal(t, "2m 5s", r.FormValue("durationFormatted"))
		assert.Equal(t, "http://t", r.FormValue("thumbnail"))
		assert.Equal(t, "abc123", r.FormValue("videoId"))
		assert.Equal(t, "https://example.com/watch?v=abc123", r.FormValue("sourceUrl"))

		f, hdr, err := r.FormFile("file")
		if !assert.NoError(t, err) {
			return
		}
		defer f.Close()
		assert.Equal(t, "abc123.mp4", hdr.Filename)
		data, _ := io.ReadAll(f)
		assert.Equal(t, "media-bytes", string(data))

		w.Write([]byte(`{"success":true,"video":{"url":"http://stored/abc123.mp4","size":11}}`))
	}))
	defer server.Close()

	up := NewBackendUploader(config.UploadConfig{BackendURL: server.URL}, server.Client(), testLogger())
	require.NoError(t, up.Check())

	res, err := up.Upload(context.Background(), testFile(t), testMeta)
	require.NoError(t, err)
	require.Equal(t, "http://stored/abc123.mp4", res.URL)
	require.Equal(t, int64(11), res.Size)
}

func TestBackendUploader_Check(t *testing.T) {
	up := NewBackendUploader(config.UploadConfig{}, http.DefaultClient, testLogger())
	require.ErrorIs(t, up.Check(), domain.ErrMissingConfig)
}

func TestBackendUploader_Rejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.Copy(io.Discard, r.Body)
		http.Error(w, "storage down", http.StatusBadGateway)
	}))
	defer server.Close()

	up := NewBackendUploader(config.UploadConfig{BackendURL: server.URL}, server.Client(), testLogger())

	_, err := up.Upload(context.Background(), testFile(t), testMeta)
	require.ErrorIs(t, err, domain.ErrUploadRejected)
}

func TestDecodeStored_NoURL(t *testing.T) {
	_, err := decodeStored(strings.NewReader(`{"success":true}`), "blob")
	require.Error(t, err)
}

type fakeS3 struct {
	input *s3.PutObjectInput
	body  string
	err   error
}

func (f *fakeS3) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.input = params
	data, _ := io.ReadAll(params.Body)
	f.body = string(data)
	if f.err != nil {
		return nil, f.err
	}
	return &s3.PutObjectOutput{}, nil
}

func TestS3Uploader_Upload(t *testing.T) {
	api := &fakeS3{}
	up := newS3Uploader(api, config.UploadConfig{S3: config.S3Config{
		Bucket:    "media",
		Region:    "eu-west-1",
		KeyPrefix: "videos/",
	}}, testLogger())
	require.NoError(t, up.Check())

	res, err := up.Upload(context.Background(), testFile(t), testMeta)
	require.NoError(t, err)
	require.Equal(t, "https://media.s3.eu-west-1.amazonaws.com/videos/abc123.mp4", res.URL)
	require.Equal(t, int64(11), res.Size)

	require.Equal(t, "media", aws.ToString(api.input.Bucket))
	require.Equal(t, "videos/abc123.mp4", aws.ToString(api.input.Key))
	require.Equal(t, "video/mp4", aws.ToString(api.input.ContentType))
	require.Equal(t, "abc123", api.input.Metadata["video-id"])
	require.Equal(t, "media-bytes", api.body)
}

func TestS3Uploader_ObjectURL(t *testing.T) {
	up := newS3Uploader(&fakeS3{}, config.UploadConfig{S3: config.S3Config{
		Bucket:        "media",
		PublicBaseURL: "https://cdn.example.com/",
	}}, nil)
	require.Equal(t, "https://cdn.example.com/a%20b.mp4", up.objectURL("a b.mp4"))

	up = newS3Uploader(&fakeS3{}, config.UploadConfig{S3: config.S3Config{
		Bucket:   "media",
		Endpoint: "http://minio:9000",
	}}, nil)
	require.Equal(t, "http://minio:9000/media/x.mp4", up.objectURL("x.mp4"))
}

func TestS3Uploader_Check(t *testing.T) {
	up := newS3Uploader(&fakeS3{}, config.UploadConfig{}, nil)
	require.ErrorIs(t, up.Check(), domain.ErrMissingConfig)
}

func TestS3Uploader_Rejected(t *testing.T) {
	api := &fakeS3{err: &awshttp.ResponseError{
		ResponseError: &smithyhttp.ResponseError{
			Response: &smithyhttp.Response{Response: &http.Response{StatusCode: http.StatusForbidden}},
			Err:      errors.New("AccessDenied"),
		},
	}}
	up := newS3Uploader(api, config.UploadConfig{S3: config.S3Config{Bucket: "media"}}, nil)

	_, err := up.Upload(context.Background(), testFile(t), testMeta)
	var upErr *domain.UploadError
	require.ErrorAs(t, err, &upErr)
	require.Equal(t, http.StatusForbidden, upErr.StatusCode)
	require.Contains(t, err.Error(), "AccessDenied")
}
