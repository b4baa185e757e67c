package model

// Role 보드 세션 내 참가자 역할
type Role string

const (
	RoleHost        Role = "HOST"
	RoleAdmin       Role = "ADMIN"
	RoleParticipant Role = "PARTICIPANT"
)

// String 메서드
func (r Role) String() string {
	return string(r)
}

// ElementKind 보드 요소 타입
type ElementKind string

const (
	ElementKindStroke       ElementKind = "STROKE"
	ElementKindEraserStroke ElementKind = "ERASER_STROKE"
	ElementKindText         ElementKind = "TEXT"
	ElementKindShape        ElementKind = "SHAPE"
	ElementKindCanvasRaster ElementKind = "CANVAS_RASTER" // full rendered canvas snapshot
)

func (k ElementKind) String() string {
	return string(k)
}

// History actions recorded in the collaboration log
const (
	ActionElementAdded       = "ELEMENT_ADDED"
	ActionCanvasCleared      = "CANVAS_CLEARED"
	ActionPermissionsUpdated = "PERMISSIONS_UPDATED"
	ActionSnapshotSaved      = "SNAPSHOT_SAVED"
	ActionExported           = "EXPORTED"
	ActionUndo               = "UNDO"
	ActionRedo               = "REDO"
)

// Canvas history replay kinds (client-local undo/redo stacks)
const (
	CanvasActionUndo = "undo"
	CanvasActionRedo = "redo"
)

// Bounded side-log capacities
const (
	MaxSnapshots      = 20  // raster captures, oldest evicted first
	MaxHistoryEntries = 100 // most-recent-100 retained
)
