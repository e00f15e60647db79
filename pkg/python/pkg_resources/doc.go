// Copyright (C) 2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

// Package pkg_resources discovers installed Python distributions and interprets their
// metadata, the way `pkg_resources.py` does: scan search-path entries for
// `.dist-info`/`.egg-info` directories, eggs, and `.egg-link` indirections; expose each find
// as a Distribution with lazy access to its requirements, extras, and entry points; and
// resolve requirement graphs against a WorkingSet of active distributions backed by an
// Environment of candidates.
//
// Unlike `pkg_resources.py`, nothing here is process-global: discovery caches (PathCache,
// ZipManifests) and extraction state (ResourceManager) are plain values owned by the caller.
package pkg_resources
