/*
Package model describes the data handled by the profile store.

Versions map to branches of the backing git repository, and profiles map to
directories under the profiles root of each branch:

	<config-root>/profiles/<profile-path>/profile.agent.properties
	<config-root>/profiles/<profile-path>/<pid>.properties
	<config-root>/profiles/<profile-path>/<any other file>

The "master" branch is reserved: its profiles are visible from every version.
*/
package model
