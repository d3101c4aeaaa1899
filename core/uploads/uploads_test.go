package uploads

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"sync"
	"testing"

	"incidentdesk/core/audit"
	"incidentdesk/core/auth"
	"incidentdesk/core/rbac"
	"incidentdesk/core/store"
	"incidentdesk/core/store/storetest"
	"incidentdesk/core/utils"
	"incidentdesk/core/validation"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/require"
)

type part struct {
	name        string
	contentType string
	body        string
}

func fileHeaders(t *testing.T, parts ...part) []*multipart.FileHeader {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for _, p := range parts {
		h := textproto.MIMEHeader{}
		h.Set("Content-Disposition", `form-data; name="evidence"; filename="`+p.name+`"`)
		h.Set("Content-Type", p.contentType)
		pw, err := w.CreatePart(h)
		require.NoError(t, err)
		_, err = pw.Write([]byte(p.body))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	req := httptest.NewRequest(http.MethodPost, "/upload/evidence", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	require.NoError(t, req.ParseMultipartForm(1<<20))
	return req.MultipartForm.File["evidence"]
}

func newService(t *testing.T, storage Storage) (*Service, store.AuditStore) {
	t.Helper()
	db := storetest.NewDB(t)
	audits := store.NewAuditStore(db)
	logger := utils.NewLogger()
	limits := Limits{MaxFiles: 2, MaxFileBytes: 64, AllowedTypes: []string{"text/plain", "image/png"}}
	return NewService(storage, limits, audit.NewRecorder(audits, logger), logger), audits
}

var alice = &auth.Principal{UserID: "u-alice", Role: rbac.RoleUser}

func TestSaveOpenDeleteOnDisk(t *testing.T) {
	disk, err := NewDiskStorage(t.TempDir())
	require.NoError(t, err)
	svc, audits := newService(t, disk)
	ctx := context.Background()

	files, err := svc.Save(ctx, alice, fileHeaders(t, part{"Notes.TXT", "text/plain; charset=utf-8", "phishing headers"}))
	require.NoError(t, err)
	require.Len(t, files, 1)
	f := files[0]
	require.True(t, ValidName(f.Filename), f.Filename)
	require.True(t, strings.HasSuffix(f.Filename, ".txt"))
	require.Equal(t, "Notes.TXT", f.OriginalName)
	require.Equal(t, "text/plain", f.MimeType)
	require.Equal(t, URLPrefix+f.Filename, f.URL)

	rc, ct, err := svc.Open(ctx, f.Filename)
	require.NoError(t, err)
	body, err := io.ReadAll(rc)
	require.NoError(t, rc.Close())
	require.NoError(t, err)
	require.Equal(t, "phishing headers", string(body))
	require.Contains(t, ct, "text/plain")

	require.NoError(t, svc.Delete(ctx, alice, f.Filename))
	_, _, err = svc.Open(ctx, f.Filename)
	require.ErrorIs(t, err, ErrNotFound)
	require.ErrorIs(t, svc.Delete(ctx, alice, f.Filename), ErrNotFound)

	_, total, err := audits.List(ctx, store.AuditFilter{TargetType: audit.TargetFile})
	require.NoError(t, err)
	require.Equal(t, 2, total)
}

func TestSaveRejectsInvalidInput(t *testing.T) {
	disk, err := NewDiskStorage(t.TempDir())
	require.NoError(t, err)
	svc, _ := newService(t, disk)
	ctx := context.Background()

	_, err = svc.Save(ctx, alice, fileHeaders(t, part{"run.exe", "application/x-msdownload", "MZ"}))
	var verr validation.Errors
	require.ErrorAs(t, err, &verr)

	_, err = svc.Save(ctx, alice, fileHeaders(t, part{"big.txt", "text/plain", strings.Repeat("x", 65)}))
	require.ErrorIs(t, err, ErrTooLarge)

	_, err = svc.Save(ctx, alice, fileHeaders(t,
		part{"a.txt", "text/plain", "a"}, part{"b.txt", "text/plain", "b"}, part{"c.txt", "text/plain", "c"}))
	require.ErrorAs(t, err, &verr)

	_, err = svc.Save(ctx, alice, nil)
	require.ErrorIs(t, err, ErrNoFiles)

	_, _, err = svc.Open(ctx, "../../etc/passwd")
	require.ErrorIs(t, err, ErrInvalidName)
}

type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	b, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[aws.ToString(in.Key)] = b
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(b))}, nil
}

func (f *fakeS3) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.objects[aws.ToString(in.Key)]; !ok {
		return nil, &types.NotFound{}
	}
	return &s3.HeadObjectOutput{}, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func TestS3StoragePrefixesKeys(t *testing.T) {
	fake := &fakeS3{objects: map[string][]byte{}}
	svc, _ := newService(t, NewS3StorageWithClient(fake, "bucket", "evidence"))
	ctx := context.Background()

	files, err := svc.Save(ctx, alice, fileHeaders(t, part{"shot.png", "image/png", "png-bytes"}))
	require.NoError(t, err)
	name := files[0].Filename
	require.Contains(t, fake.objects, "evidence/"+name)

	rc, _, err := svc.Open(ctx, name)
	require.NoError(t, err)
	require.NoError(t, rc.Close())

	require.NoError(t, svc.Delete(ctx, alice, name))
	require.ErrorIs(t, svc.Delete(ctx, alice, name), ErrNotFound)
	_, _, err = svc.Open(ctx, name)
	require.ErrorIs(t, err, ErrNotFound)
}
