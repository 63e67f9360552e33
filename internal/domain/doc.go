// Package domain contains the pipeline's entities: content items, quiz
// containers, question sets and sessions, together with their transition
// tables, reference normalization and the error taxonomy shared by every
// layer above the store.
package domain
