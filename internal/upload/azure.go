package upload

import (
	"context"
	"fmt"
	"os"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blockblob"
)

// AzureBlobWriter writes to SAS slot URLs with the Azure block blob client, uploading large
// files in parallel blocks.
type AzureBlobWriter struct {
	BlockSize   int64
	Concurrency uint16
}

// Write uploads the file at path to the SAS URL of slot.
func (w AzureBlobWriter) Write(ctx context.Context, slot Slot, path, contentType string, progress ProgressFunc) error {
	client, err := blockblob.NewClientWithNoCredential(slot.URL, nil)
	if err != nil {
		return fmt.Errorf("create block blob client: %w", err)
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open upload source: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat upload source: %w", err)
	}
	total := info.Size()

	opts := &blockblob.UploadFileOptions{
		BlockSize:   w.BlockSize,
		Concurrency: w.Concurrency,
		HTTPHeaders: &blob.HTTPHeaders{BlobContentType: &contentType},
	}
	if progress != nil {
		opts.Progress = func(sent int64) { progress(sent, total) }
	}

	if _, err := client.UploadFile(ctx, f, opts); err != nil {
		return fmt.Errorf("upload block blob: %w", err)
	}
	return nil
}
