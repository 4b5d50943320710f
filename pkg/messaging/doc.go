// Package messaging implements direct conversations.
//
// Conversation access is participant-based, not venue-based: once a
// conversation exists its participants keep access even if they later stop
// sharing venues. The venue graph is only consulted when starting a
// conversation, where every invitee must share an active venue with the
// initiator.
//
// Messages are editable by their author for a short window and deletable by
// their author forever. Read state is append-only.
package messaging
