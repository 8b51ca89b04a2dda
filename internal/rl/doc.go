// Package rl learns, per team, which tool to offer first for a request.
//
// The learning loop is tabular Q-learning over request fingerprints:
//
//	select:  key = fingerprint(request); rank tools by Q[key][tool]
//	         (with probability epsilon, rank them at random instead)
//	update:  Q[key][tool] += lr * (reward + gamma * max(Q[key][*]) - Q[key][tool])
//
// The max is taken over the same state's row. Tool choice is a single-step
// decision with no modelled next state, so the update keeps that
// contextual-bandit shape deliberately.
//
// Fingerprints come in two modes. Exact mode hashes the lower-cased,
// whitespace-normalised request text. Embedding mode embeds the text and
// reuses the key of the most similar known state when cosine similarity
// reaches the configured threshold, so paraphrases share Q-values. Embedding
// failures fall back to exact keys for that call.
//
// A Manager is safe for concurrent use; it is the one object that teams and
// conversations may share to co-train a tool vocabulary. Q-tables persist
// through a Store: FileStore writes JSON via a temp file and atomic rename,
// SQLiteStore keeps several managers in one database.
package rl
