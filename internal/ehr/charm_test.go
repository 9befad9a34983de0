package ehr

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCharmDOB(t *testing.T) {
	assert.Equal(t, "03141990", charmDOB("1990-03-14"))
	assert.Equal(t, "12312001", charmDOB("2001-12-31"))
	// Anything not in YYYY-MM-DD form is passed through untouched.
	assert.Equal(t, "14/03/1990", charmDOB("14/03/1990"))
	assert.Equal(t, "", charmDOB(""))
}

func TestXPathString(t *testing.T) {
	assert.Equal(t, "'Mercy Clinic'", xpathString("Mercy Clinic"))
	assert.Equal(t, `concat('St. Mary', "'", 's')`, xpathString("St. Mary's"))
}
