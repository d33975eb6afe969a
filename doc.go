// Package flasky is the domain core of a small blogging and social
// network service: accounts with role-based permissions, signed
// time-limited tokens for the confirmation, password-reset, and
// email-change flows, a follow graph with a composed content feed, and
// a shared pagination engine.
//
// Token flows:
//   - TokenService signs JWTs scoped to a single purpose (confirm,
//     reset, change_email) with the expiry embedded in the claims. The
//     Credentials service verifies purpose and subject before
//     committing any mutation, so a failed verification never leaves a
//     partially updated record.
//
// Authorization:
//   - Permission is a bit flag; a Role grants a permission iff its
//     bitmask contains every bit. Users satisfy Principal through
//     their role; AnonymousUser is the explicit no-permission sentinel
//     used when no session identity is present.
//
// Follow graph:
//   - Every account carries a reflexive self-follow edge, so the
//     followed-posts feed uniformly includes the user's own articles.
//     Deleting an account removes every edge touching it.
//
// Persistence runs through Bun repositories behind narrow interfaces;
// collaborators (Mailer, Clock, Config) are injected so the core stays
// deterministic under test.
package flasky
