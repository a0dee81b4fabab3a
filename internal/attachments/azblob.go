// SMS Archive - Telephony Message Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/smsarchive

package attachments

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"

	"github.com/tomtom215/smsarchive/internal/config"
	"github.com/tomtom215/smsarchive/internal/metrics"
)

// AzureBackend stores attachments in an Azure Blob Storage container with
// blob-level public read access.
type AzureBackend struct {
	client    *azblob.Client
	container string
	timeout   time.Duration
}

// NewAzureBackend connects to the storage account in cfg.ConnectionString.
func NewAzureBackend(cfg config.BlobConfig) (*AzureBackend, error) {
	client, err := azblob.NewClientFromConnectionString(cfg.ConnectionString, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create blob client: %w", err)
	}
	return &AzureBackend{client: client, container: cfg.Container, timeout: cfg.Timeout}, nil
}

func (b *AzureBackend) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if b.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, b.timeout)
}

// EnsureContainer creates the container if it is missing.
func (b *AzureBackend) EnsureContainer(ctx context.Context) error {
	ctx, cancel := b.withTimeout(ctx)
	defer cancel()

	_, err := b.client.CreateContainer(ctx, b.container, &azblob.CreateContainerOptions{
		Access: to.Ptr(azblob.PublicAccessTypeBlob),
	})
	if err != nil && !bloberror.HasCode(err, bloberror.ContainerAlreadyExists) {
		return fmt.Errorf("create container %s: %w", b.container, err)
	}
	return nil
}

// Upload writes data under key and returns the blob URL.
func (b *AzureBackend) Upload(ctx context.Context, key string, data []byte, contentType, disposition string) (string, error) {
	ctx, cancel := b.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	_, err := b.client.UploadBuffer(ctx, b.container, key, data, &azblob.UploadBufferOptions{
		HTTPHeaders: &blob.HTTPHeaders{
			BlobContentType:        to.Ptr(contentType),
			BlobContentDisposition: to.Ptr(disposition),
		},
	})
	metrics.RecordStoreOperation("blob_upload", time.Since(start), err)
	if err != nil {
		return "", err
	}
	return b.blobURL(key), nil
}

// Exists reports whether key is present. A missing blob is not an error.
func (b *AzureBackend) Exists(ctx context.Context, key string) (bool, error) {
	ctx, cancel := b.withTimeout(ctx)
	defer cancel()

	_, err := b.client.ServiceClient().NewContainerClient(b.container).NewBlobClient(key).GetProperties(ctx, nil)
	if err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound, bloberror.ContainerNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Delete removes key. Deleting a missing blob succeeds.
func (b *AzureBackend) Delete(ctx context.Context, key string) error {
	ctx, cancel := b.withTimeout(ctx)
	defer cancel()

	_, err := b.client.DeleteBlob(ctx, b.container, key, nil)
	if err != nil && !bloberror.HasCode(err, bloberror.BlobNotFound) {
		return err
	}
	return nil
}

// KeyFromURL extracts the blob name from a URL in this container.
func (b *AzureBackend) KeyFromURL(blobURL string) (string, error) {
	return keyFromURL(blobURL, b.container)
}

func (b *AzureBackend) blobURL(key string) string {
	return b.client.ServiceClient().NewContainerClient(b.container).NewBlobClient(key).URL()
}

// keyFromURL expects https://{account}.blob.core.windows.net/{container}/{key}
// (or an emulator URL with the account as the first path segment).
func keyFromURL(blobURL, container string) (string, error) {
	u, err := url.Parse(blobURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("invalid blob URL %q", blobURL)
	}
	path := strings.TrimPrefix(u.Path, "/")
	marker := container + "/"
	idx := strings.Index(path, marker)
	if idx < 0 || (idx > 0 && path[idx-1] != '/') {
		return "", fmt.Errorf("blob URL %q is not in container %s", blobURL, container)
	}
	key, err := url.PathUnescape(path[idx+len(marker):])
	if err != nil || key == "" {
		return "", fmt.Errorf("blob URL %q has no blob name", blobURL)
	}
	return key, nil
}
