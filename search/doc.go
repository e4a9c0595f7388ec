// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
// Package search answers natural-language queries with the chunks nearest
// to the query embedding.
//
// A Searcher embeds the query with each registered provider in turn and
// stops at the first one whose vector space yields hits. Only chunks of the
// same dimension as the query vector are compared, so providers with
// different models never mix. Results are cached per owner, workspace,
// limit and query until their TTL expires or an ingestion into the same
// owner invalidates them.
package search
