// Copyright 2026 The Showroom Authors
// SPDX-License-Identifier: Apache-2.0

package protocol

// ModelSwitch is the payload of model_switch and update_index: the
// index of the model the sender is now displaying.
type ModelSwitch struct {
	Index int `cbor:"index"`
}

// DeleteFileRequest is the payload of delete_file.
type DeleteFileRequest struct {
	FileName string `cbor:"fileName"`
	Category string `cbor:"category"`
}

// DeleteSuccess is the payload of delete_success.
type DeleteSuccess struct {
	FileName string `cbor:"fileName"`
}

// PresignRequest is the payload of request_presigned_url.
type PresignRequest struct {
	FileName string `cbor:"fileName"`
	Category string `cbor:"category"`
}

// PresignResponse is the payload of presigned_url. UploadURL is a
// time-bounded capability: anyone holding it may PUT the asset bytes
// once before it expires.
type PresignResponse struct {
	UploadURL string `cbor:"uploadUrl"`
	FileName  string `cbor:"fileName"`
}

// UploadCompleteRequest is the payload of upload_complete. Author is
// free text; the server substitutes "Anonymous" when empty.
type UploadCompleteRequest struct {
	FileName string `cbor:"fileName"`
	Author   string `cbor:"author,omitempty"`
	Category string `cbor:"category"`
}

// UploadSuccess is the payload of upload_success.
type UploadSuccess struct {
	FileName string `cbor:"fileName"`
}

// ModelUploaded is the payload of model_uploaded, broadcast to every
// connection after an asset is compressed and committed.
type ModelUploaded struct {
	FileName string `cbor:"fileName"`
	Author   string `cbor:"author"`
	Category string `cbor:"category"`
	ModelURL string `cbor:"modelUrl"`
}

// ModelEntry is one asset in a files_list group.
type ModelEntry struct {
	ID       string `cbor:"id"`
	Author   string `cbor:"author"`
	Category string `cbor:"category"`
	URL      string `cbor:"url"`
}

// FilesList is the payload of files_list: assets grouped by category.
// Group order is not significant; entries within a group are sorted by
// id.
type FilesList struct {
	Groups map[string][]ModelEntry `cbor:"groups"`
}

// Error is the payload of files_error, delete_error,
// presigned_url_error, and upload_error.
type Error struct {
	Message string `cbor:"message"`
}
