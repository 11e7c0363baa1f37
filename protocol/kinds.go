// Copyright 2026 The Showroom Authors
// SPDX-License-Identifier: Apache-2.0

package protocol

// Event kinds sent by clients. These are protocol constants — renaming
// one breaks every deployed client.
const (
	// KindRequestControl asks for the scene control lease. No
	// payload. Answered with control_granted or control_denied to
	// the requester only.
	KindRequestControl = "request_control"

	// KindCameraUpdate carries camera parameters from the lease
	// holder. Payload is opaque and relayed verbatim to every other
	// connection. Silently dropped when the sender does not hold the
	// lease.
	KindCameraUpdate = "camera_update"

	// KindSettingsUpdate carries a scene settings object from the
	// lease holder, relayed verbatim to every other connection.
	// Silently dropped for non-holders.
	KindSettingsUpdate = "settings_update"

	// KindSettingsUpdateLocal carries a settings object that is
	// echoed back only to the sender. A separate kind from
	// settings_update, not a flag on it. Requires the lease.
	KindSettingsUpdateLocal = "settings_update_local"

	// KindModelSwitch announces that the sender switched the
	// displayed model. Payload is ModelSwitch. Relayed to every
	// other connection as update_index. Not gated by the lease.
	KindModelSwitch = "model_switch"

	// KindGetFiles requests the grouped asset listing. No payload.
	KindGetFiles = "get_files"

	// KindDeleteFile requests deletion of one asset (blob and
	// metadata record). Payload is DeleteFileRequest.
	KindDeleteFile = "delete_file"

	// KindRequestPresignedURL requests a time-bounded upload URL for
	// a new asset. Payload is PresignRequest.
	KindRequestPresignedURL = "request_presigned_url"

	// KindUploadComplete notifies the server that the client's direct
	// upload finished, triggering compression, metadata commit, and
	// the model_uploaded announcement. Payload is
	// UploadCompleteRequest.
	KindUploadComplete = "upload_complete"
)

// Event kinds sent by the server.
const (
	// KindControlGranted and KindControlDenied answer
	// request_control. No payload.
	KindControlGranted = "control_granted"
	KindControlDenied  = "control_denied"

	// KindUpdateIndex relays a model_switch to other connections.
	// Payload is the sender's ModelSwitch payload, verbatim.
	KindUpdateIndex = "update_index"

	// KindFilesList answers get_files. Payload is FilesList.
	// KindFilesError reports a listing failure. Payload is Error.
	KindFilesList  = "files_list"
	KindFilesError = "files_error"

	// KindDeleteSuccess and KindDeleteError answer delete_file.
	KindDeleteSuccess = "delete_success"
	KindDeleteError   = "delete_error"

	// KindPresignedURL answers request_presigned_url with the signed
	// upload URL. Payload is PresignResponse.
	KindPresignedURL      = "presigned_url"
	KindPresignedURLError = "presigned_url_error"

	// KindModelUploaded announces a newly ingested asset to every
	// connection, including the uploader. Payload is ModelUploaded.
	KindModelUploaded = "model_uploaded"

	// KindUploadSuccess acknowledges a completed ingestion to the
	// uploader. KindUploadError reports a pipeline failure to the
	// uploader only.
	KindUploadSuccess = "upload_success"
	KindUploadError   = "upload_error"
)
